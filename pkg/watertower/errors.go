package watertower

import "errors"

var (
	// ErrBadPayload indicates a reply that is not a 4 byte echo time
	ErrBadPayload = errors.New("echo payload must be 4 bytes")

	// ErrEchoOutOfRange indicates an echo time outside the sensor's range
	ErrEchoOutOfRange = errors.New("echo time out of range")

	// ErrInvalidTower indicates a tower id outside 0..MaxQuantity-1
	ErrInvalidTower = errors.New("invalid tower id")

	// ErrDuplicateTower indicates two configurations for one tower id
	ErrDuplicateTower = errors.New("tower configured twice")

	// ErrTowerNotFound indicates a lookup of a tower the station does not have
	ErrTowerNotFound = errors.New("tower not found")

	// ErrInvalidHeight indicates a tank height or reserve that cannot work
	ErrInvalidHeight = errors.New("invalid tank height")

	// ErrInvalidInterval indicates a sample interval outside 1..255 s
	ErrInvalidInterval = errors.New("sample interval must be between 1 and 255 seconds")
)
