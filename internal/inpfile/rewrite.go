package inpfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/couchcryptid/swmm-fews-adapter/internal/domain"
)

const (
	sectionOptions  = "[OPTIONS]"
	sectionCurves   = "[CURVES]"
	sectionControls = "[CONTROLS]"
)

var optionKey = regexp.MustCompile(`^(START_DATE|START_TIME|END_DATE|END_TIME|REPORT_START_DATE|REPORT_START_TIME)\b`)

// Input is what the rewriter injects into a template input file.
type Input struct {
	Start  time.Time
	End    time.Time
	Curves []domain.CurveDefinition
	Rules  []domain.RuleBlock
}

// Result summarises a rewrite.
type Result struct {
	OptionsUpdated int
	Replaced       []string // curve ids written from the supplied curves
	Unmatched      []string // supplied curve ids absent from [CURVES]
	RulesInjected  bool
}

type rewriter struct {
	w      *bufio.Writer
	in     Input
	logger *slog.Logger

	options map[string]string
	curves  map[string]string

	previous, current string
	sawControls       bool
	writeOriginal     bool
	seen              map[string]bool
	res               Result
}

// Rewrite copies the input file from r to w, updating the simulation window
// in [OPTIONS], replacing supplied curves in [CURVES] and appending rules at
// the end of [CONTROLS]. All other bytes are copied unchanged.
func Rewrite(r io.Reader, w io.Writer, in Input, logger *slog.Logger) (Result, error) {
	curves := make(map[string]string, len(in.Curves))
	for _, c := range in.Curves {
		if _, dup := curves[c.ID]; dup {
			return Result{}, fmt.Errorf("%w: curve %s supplied more than once", domain.ErrDuplicate, c.ID)
		}
		curves[c.ID] = RenderCurve(c)
	}

	rw := &rewriter{
		w:             bufio.NewWriter(w),
		in:            in,
		logger:        logger,
		options:       optionValues(in.Start, in.End),
		curves:        curves,
		writeOriginal: true,
		seen:          make(map[string]bool),
	}

	br := bufio.NewReader(r)
	lastLine := ""
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			rw.process(line)
			lastLine = line
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read input file: %w", err)
		}
	}

	// [CONTROLS] as the last section never sees a closing header.
	if rw.current == sectionControls && !rw.res.RulesInjected && len(in.Rules) > 0 {
		if lastLine != "" && !strings.HasSuffix(lastLine, "\n") {
			rw.w.WriteString("\n")
		}
		rw.writeRules()
	}

	if err := rw.w.Flush(); err != nil {
		return Result{}, fmt.Errorf("write input file: %w", err)
	}

	if !rw.sawControls && len(in.Rules) > 0 {
		return rw.res, fmt.Errorf("%w: control rules were supplied but the input file has no %s section; add a default rule to anchor them",
			domain.ErrConfig, sectionControls)
	}

	for _, c := range in.Curves {
		if !rw.seen[c.ID] {
			rw.res.Unmatched = append(rw.res.Unmatched, c.ID)
		}
	}
	if len(rw.res.Unmatched) > 0 {
		logger.Warn("curves supplied by FEWS have no match in the input file and are ignored", "curves", rw.res.Unmatched)
	}
	return rw.res, nil
}

func (rw *rewriter) process(line string) {
	switched := strings.HasPrefix(line, "[")
	if switched {
		rw.previous, rw.current = rw.current, strings.TrimSpace(line)
		if rw.current == sectionControls {
			rw.sawControls = true
		}
	}

	switch {
	case switched && rw.previous == sectionControls:
		rw.writeRules()
		rw.w.WriteString(line)
	case rw.current == sectionOptions:
		rw.rewriteOption(line)
	case rw.current == sectionCurves:
		rw.rewriteCurve(line)
	default:
		rw.w.WriteString(line)
	}
}

func (rw *rewriter) writeRules() {
	if len(rw.in.Rules) == 0 {
		return
	}
	for _, r := range rw.in.Rules {
		rw.w.WriteString(r.Text)
	}
	rw.res.RulesInjected = true
	rw.logger.Info("control rules appended to input file", "series", len(rw.in.Rules))
}

func (rw *rewriter) rewriteOption(line string) {
	m := optionKey.FindStringSubmatch(line)
	if m == nil {
		rw.w.WriteString(line)
		return
	}
	key := m[1]
	fmt.Fprintf(rw.w, "%-21s%s%s", key, rw.options[key], lineEnding(line))
	rw.res.OptionsUpdated++
}

// rewriteCurve replaces a supplied curve at its keyword line and drops the
// original points that follow it, up to the next blank or comment line.
func (rw *rewriter) rewriteCurve(line string) {
	if len(rw.curves) == 0 {
		rw.w.WriteString(line)
		return
	}

	fields := strings.Fields(line)
	switch {
	case len(fields) == 4 && domain.IsCurveKind(fields[1]):
		id := fields[0]
		rw.seen[id] = true
		if rendered, ok := rw.curves[id]; ok {
			rw.logger.Info("using the curve supplied by FEWS", "curve", id)
			rw.w.WriteString(rendered)
			rw.res.Replaced = append(rw.res.Replaced, id)
			rw.writeOriginal = false
		} else {
			rw.writeOriginal = true
		}
	case strings.TrimSpace(line) == "" || strings.HasPrefix(line, ";"):
		rw.writeOriginal = true
	}

	if rw.writeOriginal {
		rw.w.WriteString(line)
	}
}

func optionValues(start, end time.Time) map[string]string {
	const dateLayout, timeLayout = "01/02/2006", "15:04:05"
	return map[string]string{
		"START_DATE":        start.Format(dateLayout),
		"START_TIME":        start.Format(timeLayout),
		"END_DATE":          end.Format(dateLayout),
		"END_TIME":          end.Format(timeLayout),
		"REPORT_START_DATE": start.Format(dateLayout),
		"REPORT_START_TIME": start.Format(timeLayout),
	}
}

func lineEnding(line string) string {
	if strings.HasSuffix(line, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// RewriteFile rewrites the input file at path in place. The new content is
// written to a temporary file in the same directory and renamed over the
// original only when the rewrite succeeds.
func RewriteFile(path string, in Input, logger *slog.Logger) (Result, error) {
	src, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: open input file: %w", domain.ErrConfig, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat input file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("create temp input file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	res, err := Rewrite(src, tmp, in, logger)
	if err != nil {
		return res, err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return res, fmt.Errorf("chmod temp input file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return res, fmt.Errorf("close temp input file: %w", err)
	}
	// Windows refuses to rename over an open file.
	_ = src.Close()
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return res, fmt.Errorf("replace input file: %w", err)
	}
	committed = true
	logger.Debug("input file rewritten", "path", path,
		"options", res.OptionsUpdated, "curves", len(res.Replaced), "rules", res.RulesInjected)
	return res, nil
}
