// Package identity extracts a device's identity from the property list an
// iOS profile-service payload posts back after the profile is installed.
package identity

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"howett.net/plist"

	udiderrors "getudid/internal/errors"
)

// Unknown is the value of any field absent from the decoded document.
const Unknown = "NULL"

// TimestampLayout renders extraction times, e.g. 2026-10-18 14:03:11 GMT+07:00.
// A zero offset renders as plain GMT.
const TimestampLayout = "2006-01-02 15:04:05 GMT-07:00"

const utcTimestampLayout = "2006-01-02 15:04:05 GMT"

var (
	startMarker = []byte("<?xml")
	endMarker   = []byte("</plist>")
)

// Record is the identity extracted from one successful submission.
type Record struct {
	UDID        string
	IMEI        string
	Product     string
	Version     string
	Serial      string
	ExtractedAt time.Time
}

// String renders the five identity fields, one KEY: value pair per line.
func (r Record) String() string {
	return strings.Join(r.Lines(), "\n")
}

// Lines returns the five identity fields as KEY: value lines.
func (r Record) Lines() []string {
	return []string{
		"UDID: " + r.UDID,
		"IMEI: " + r.IMEI,
		"PRODUCT: " + r.Product,
		"VERSION: " + r.Version,
		"SERIAL: " + r.Serial,
	}
}

// Timestamp formats ExtractedAt in local time.
func (r Record) Timestamp() string {
	return FormatTimestamp(r.ExtractedAt.Local())
}

// FormatTimestamp formats t in its own zone with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	if _, offset := t.Zone(); offset == 0 {
		return t.Format(utcTimestampLayout)
	}
	return t.Format(TimestampLayout)
}

// Summary is the multi-line activity log entry for the record.
func (r Record) Summary() string {
	return fmt.Sprintf("\n========== INFO DEVICE ==========\n%s\n\nExtracted at %s\n", r, r.Timestamp())
}

// Slice isolates the embedded property list: from the first "<?xml" through the
// end of the last "</plist>". Leading and trailing transport noise (multipart
// boundaries, CMS signature bytes) is discarded.
func Slice(body []byte) ([]byte, error) {
	start := bytes.Index(body, startMarker)
	if start < 0 {
		return nil, udiderrors.New(udiderrors.UnparseableBody, "missing <?xml marker", nil)
	}
	end := bytes.LastIndex(body, endMarker)
	if end < 0 {
		return nil, udiderrors.New(udiderrors.UnparseableBody, "missing </plist> marker", nil)
	}
	if end < start {
		return nil, udiderrors.New(udiderrors.UnparseableBody, "</plist> precedes <?xml", nil)
	}
	return body[start : end+len(endMarker)], nil
}

// Extract decodes the property list embedded in body into a Record stamped with now.
func Extract(body []byte, now time.Time) (Record, error) {
	doc, err := Slice(body)
	if err != nil {
		return Record{}, err
	}

	var decoded interface{}
	format, err := plist.Unmarshal(doc, &decoded)
	if err != nil {
		return Record{}, udiderrors.New(udiderrors.ParseError, "decode property list", err)
	}
	if format == plist.BinaryFormat {
		return Record{}, udiderrors.New(udiderrors.ParseError, "binary property list", nil)
	}

	dict, ok := decoded.(map[string]interface{})
	if !ok {
		return Record{}, udiderrors.New(udiderrors.ParseError,
			fmt.Sprintf("property list root is %T, want dictionary", decoded), nil)
	}

	return Record{
		UDID:        stringField(dict, "UDID"),
		IMEI:        stringField(dict, "IMEI"),
		Product:     stringField(dict, "PRODUCT"),
		Version:     stringField(dict, "VERSION"),
		Serial:      stringField(dict, "SERIAL"),
		ExtractedAt: now,
	}, nil
}

func stringField(dict map[string]interface{}, key string) string {
	if s, ok := dict[key].(string); ok {
		return s
	}
	return Unknown
}
