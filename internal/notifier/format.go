package notifier

import (
	"fmt"
	"math"
	"strconv"

	"snaptrigger/internal/capture"
)

// Caption is the text attached to a delivered image, e.g.
// "📷 frontdoor captured in 1.42 secs".
func Caption(r capture.Result) string {
	secs := math.Round(r.Duration.Seconds()*100) / 100
	return fmt.Sprintf("📷 %s captured in %s secs", r.Source, strconv.FormatFloat(secs, 'f', -1, 64))
}

// Alert is the text sent instead of an image when a capture failed. It names
// the source and the failure kind.
func Alert(r capture.Result) string {
	if r.Err == nil {
		return fmt.Sprintf("🚨 ERROR: %s produced no image", r.Source)
	}
	var what string
	switch r.Err.Kind {
	case capture.OpenFailed:
		what = "CAPTURE ERROR: " + r.Source + " failed to open stream"
	case capture.ReadFailed:
		what = "CAPTURE ERROR: " + r.Source + " failed to grab frame"
	case capture.EncodeFailed:
		what = "ERROR: " + r.Source + " failed to encode frame"
	case capture.Timeout:
		what = "CAPTURE ERROR: " + r.Source + " timed out"
	default:
		what = "ERROR: " + r.Source + " capture failed"
	}
	return fmt.Sprintf("🚨 %s [%s]", what, r.Err.Kind)
}
