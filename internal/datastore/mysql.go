package datastore

import (
	"net"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// MySQLStore implements Interface for MySQL.
type MySQLStore struct {
	DataStore
	Config conf.MySQLSettings
}

// DSN builds the driver connection string.
func (store *MySQLStore) DSN() string {
	cfg := mysqldriver.NewConfig()
	cfg.User = store.Config.Username
	cfg.Passwd = store.Config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(store.Config.Host, store.Config.Port)
	cfg.DBName = store.Config.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects to MySQL and migrates the schema.
func (store *MySQLStore) Open() error {
	db, err := gorm.Open(mysql.Open(store.DSN()), store.gormConfig())
	if err != nil {
		store.log.Error("failed to open MySQL database",
			logger.String("host", store.Config.Host),
			logger.String("port", store.Config.Port),
			logger.String("database", store.Config.Database),
			logger.Error(err))
		return dbError(err, "open", "")
	}
	store.DB = db

	store.log.Info("opened MySQL database",
		logger.String("host", store.Config.Host),
		logger.String("database", store.Config.Database))
	return store.migrate()
}
