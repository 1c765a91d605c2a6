package buffer

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
)

// ErrUpload matches every *UploadError through errors.Is.
var ErrUpload = errors.New("location upload failed")

// UploadError reports the sample whose upload failed. The sample and every
// sample after it in the batch remain buffered.
type UploadError struct {
	Sample location.Sample
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload location sample from %s: %v",
		e.Sample.Timestamp.Format(time.RFC3339Nano), e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}
