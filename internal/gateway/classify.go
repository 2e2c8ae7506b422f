package gateway

import (
	"bytes"
	"encoding/json"
	"regexp"
)

var (
	notPaidStatus = regexp.MustCompile(`"status":"(pending|unpaid|expire|expired|failed|fail|cancel|canceled)"`)
	paidMarkers   = []*regexp.Regexp{
		regexp.MustCompile(`"status":"completed"`),
		regexp.MustCompile(`"completed":true`),
		regexp.MustCompile(`"paid":true`),
		regexp.MustCompile(`"is_paid":true`),
	}
)

// Classify membaca dokumen detail gateway dan memutuskan paid atau tidak.
// Status negatif menang atas marker positif. Bentuk yang tidak dikenali -> recognized=false dan paid=false.
func Classify(raw []byte) (paid, recognized bool) {
	s := normalize(raw)
	if notPaidStatus.Match(s) {
		return false, true
	}
	for _, re := range paidMarkers {
		if re.Match(s) {
			return true, true
		}
	}
	return false, false
}

// normalize: JSON dipadatkan (tanpa spasi) lalu lowercase supaya pola sederhana cukup.
func normalize(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return bytes.ToLower(raw)
	}
	return bytes.ToLower(buf.Bytes())
}
