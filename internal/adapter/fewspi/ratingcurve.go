package fewspi

import (
	"fmt"
	"io"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
	"github.com/shopspring/decimal"
)

type ratingCurvesDoc struct {
	Curves []ratingCurve `xml:"ratingCurve"`
}

type ratingCurve struct {
	Header struct {
		LocationID string `xml:"locationId"`
		StageUnit  string `xml:"stageUnit"`
	} `xml:"header"`
	Tables []struct {
		Rows []struct {
			Stage     *string `xml:"stage,attr"`
			Discharge *string `xml:"discharge,attr"`
		} `xml:"row"`
	} `xml:"table"`
}

// ReadRatingCurvesFile reads a PI rating curve export from path.
func ReadRatingCurvesFile(path string) ([]domain.CurveDefinition, error) {
	var doc ratingCurvesDoc
	if err := decodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("read rating curves %s: %w", path, err)
	}
	curves, err := doc.curves()
	if err != nil {
		return nil, fmt.Errorf("read rating curves %s: %w", path, err)
	}
	return curves, nil
}

// ReadRatingCurves reads a PI rating curve export. Each curve becomes a
// Rating curve keyed by its location. A curve with several tables keeps the
// last one.
func ReadRatingCurves(r io.Reader) ([]domain.CurveDefinition, error) {
	var doc ratingCurvesDoc
	if err := decode(r, &doc); err != nil {
		return nil, err
	}
	return doc.curves()
}

func (doc ratingCurvesDoc) curves() ([]domain.CurveDefinition, error) {
	if len(doc.Curves) == 0 {
		return nil, fmt.Errorf("%w: no rating curves provided", domain.ErrConfig)
	}

	out := make([]domain.CurveDefinition, 0, len(doc.Curves))
	seen := make(map[string]bool, len(doc.Curves))
	for _, rc := range doc.Curves {
		loc := rc.Header.LocationID
		if loc == "" {
			return nil, fmt.Errorf("%w: rating curve without locationId", domain.ErrConfig)
		}
		if seen[loc] {
			return nil, fmt.Errorf("%w: multiple rating curves for %s", domain.ErrDuplicate, loc)
		}
		seen[loc] = true
		if len(rc.Tables) == 0 || len(rc.Tables[len(rc.Tables)-1].Rows) == 0 {
			return nil, fmt.Errorf("%w: rating curve %s has no rows", domain.ErrConfig, loc)
		}

		rows := rc.Tables[len(rc.Tables)-1].Rows
		c := domain.CurveDefinition{
			ID:     loc,
			Kind:   domain.CurveRating,
			Unit:   rc.Header.StageUnit,
			Points: make([]domain.CurvePoint, 0, len(rows)),
		}
		for i, row := range rows {
			if row.Stage == nil || row.Discharge == nil {
				return nil, fmt.Errorf("%w: rating curve %s row %d lacks stage or discharge", domain.ErrConfig, loc, i+1)
			}
			if err := checkNumber(*row.Stage); err != nil {
				return nil, fmt.Errorf("%w: rating curve %s row %d stage: %w", domain.ErrConfig, loc, i+1, err)
			}
			if err := checkNumber(*row.Discharge); err != nil {
				return nil, fmt.Errorf("%w: rating curve %s row %d discharge: %w", domain.ErrConfig, loc, i+1, err)
			}
			c.Points = append(c.Points, domain.CurvePoint{X: *row.Stage, Y: *row.Discharge})
		}
		out = append(out, c)
	}
	return out, nil
}

func checkNumber(s string) error {
	_, err := decimal.NewFromString(s)
	return err
}
