// Package fewspi reads the Delft-FEWS Published Interface (PI) XML exports
// the adapter consumes: rating curves and control-rule time series.
//
// Elements are matched by local name, so documents with or without the PI
// namespace declaration are accepted.
package fewspi

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

// Namespace is the FEWS PI XML namespace.
const Namespace = "http://www.wldelft.nl/fews/PI"

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ParseDateTime parses a PI date/time attribute pair.
func ParseDateTime(date, clock string) (time.Time, error) {
	t, err := time.Parse(dateLayout+" "+timeLayout, date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date/time %q %q", domain.ErrConfig, date, clock)
	}
	return t, nil
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	defer f.Close()
	return decode(f, v)
}

// decode reads the root element into v. A root without a namespace is
// accepted; any namespace other than PI is not.
func decode(r io.Reader, v any) error {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err != nil {
			return fmt.Errorf("%w: decode PI XML: %w", domain.ErrConfig, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if ns := start.Name.Space; ns != "" && ns != Namespace {
			return fmt.Errorf("%w: %s is in namespace %q, expected %s", domain.ErrConfig, start.Name.Local, ns, Namespace)
		}
		if err := d.DecodeElement(v, &start); err != nil {
			return fmt.Errorf("%w: decode PI XML: %w", domain.ErrConfig, err)
		}
		return nil
	}
}
