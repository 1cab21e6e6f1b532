package recognition

import "net/http"

// Kind classifies how a recognition request ended.
type Kind int

const (
	KindSuccess Kind = iota
	KindMissingUsername
	KindInvalidUsername
	KindMissingImage
	KindInvalidImage
	KindDecode
	KindStorage
	KindInference
	KindTimeout
	KindNotDetected
	KindNotIdentified
)

var kindMessages = map[Kind]string{
	KindMissingUsername: "Missing username parameter",
	KindInvalidUsername: "Invalid username parameter",
	KindMissingImage:    "No input image provided",
	KindInvalidImage:    "Invalid input image",
	KindDecode:          "Failed to read the image",
	KindStorage:         "Failed to store the image",
	KindInference:       "Failed to process the image",
	KindTimeout:         "Image processing timed out",
	KindNotDetected:     "Fish not detected",
	KindNotIdentified:   "Fish not identified",
}

// Message is the caller facing text for k. It never includes internal detail.
func (k Kind) Message() string { return kindMessages[k] }

// HTTPStatus is the status code a transport should use for k. Only request
// validation failures are reported as client errors; everything else is a
// 200 with a failed body.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMissingUsername, KindInvalidUsername, KindMissingImage, KindInvalidImage:
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindMissingUsername:
		return "missing_username"
	case KindInvalidUsername:
		return "invalid_username"
	case KindMissingImage:
		return "missing_image"
	case KindInvalidImage:
		return "invalid_image"
	case KindDecode:
		return "decode"
	case KindStorage:
		return "storage"
	case KindInference:
		return "inference"
	case KindTimeout:
		return "timeout"
	case KindNotDetected:
		return "not_detected"
	case KindNotIdentified:
		return "not_identified"
	}
	return "unknown"
}
