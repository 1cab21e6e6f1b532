// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "fishnet-go")
	viper.SetDefault("main.log.default_level", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console.enabled", true)
	viper.SetDefault("main.log.console.level", "info")
	viper.SetDefault("main.log.file_output.enabled", false)
	viper.SetDefault("main.log.file_output.path", "logs/fishnet.log")
	viper.SetDefault("main.log.file_output.level", "debug")

	viper.SetDefault("media.root", "media")
	viper.SetDefault("media.url", "/media/")

	viper.SetDefault("detector.backend", "tflite")
	viper.SetDefault("detector.modelpath", "models/fish_detector.tflite")
	viper.SetDefault("detector.inputsize", 640)
	viper.SetDefault("detector.confidence", 0.85)
	viper.SetDefault("detector.iou", 0.45)
	viper.SetDefault("detector.tiebreak", "last")
	viper.SetDefault("detector.normalizedboxes", true)
	viper.SetDefault("detector.maxdetections", 300)
	viper.SetDefault("detector.threads", 0)
	viper.SetDefault("detector.usexnnpack", true)

	viper.SetDefault("classifier.backend", "tflite")
	viper.SetDefault("classifier.modelpath", "models/fish_classifier.tflite")
	viper.SetDefault("classifier.labelpath", "")
	viper.SetDefault("classifier.inputsize", 224)
	viper.SetDefault("classifier.channelorder", "bgr")
	viper.SetDefault("classifier.applysoftmax", false)
	viper.SetDefault("classifier.threads", 0)
	viper.SetDefault("classifier.usexnnpack", true)
	viper.SetDefault("classifier.remote.url", "")
	viper.SetDefault("classifier.remote.timeout", 10*time.Second)

	viper.SetDefault("inference.timeout", 30*time.Second)
	viper.SetDefault("inference.warmup", true)

	viper.SetDefault("annotation.thickness", 10)
	viper.SetDefault("annotation.fontscale", 10)
	viper.SetDefault("annotation.color", "#00ff00")
	viper.SetDefault("annotation.jpegquality", 95)

	viper.SetDefault("webserver.host", "")
	viper.SetDefault("webserver.port", "8000")
	viper.SetDefault("webserver.maxuploadsize", "20M")
	viper.SetDefault("webserver.readtimeout", 60*time.Second)
	viper.SetDefault("webserver.writetimeout", 120*time.Second)
	viper.SetDefault("webserver.shutdowntimeout", 10*time.Second)
	viper.SetDefault("webserver.ratelimit.enabled", false)
	viper.SetDefault("webserver.ratelimit.requestspersecond", 2.0)
	viper.SetDefault("webserver.ratelimit.burst", 5)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "fishnet.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "fishnet")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "fishnet")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("cache.fishttl", 10*time.Minute)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "fishnet/recognitions")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.clientid", "")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.samplerate", 1.0)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}
