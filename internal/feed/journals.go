package feed

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/valpere/paperdigest/internal"
)

// DefaultJournals is used when the journal list file does not exist.
var DefaultJournals = []internal.Journal{
	{Name: "Medical Dosimetry", URL: "http://www.meddos.org/current.rss"},
	{Name: "Physica Medica", URL: "http://www.physicamedica.com/current.rss"},
	{Name: "Journal of Applied Clinical Medical Physics", URL: "https://aapm.onlinelibrary.wiley.com/feed/15269914/most-recent"},
	{Name: "Medical Physics", URL: "https://aapm.onlinelibrary.wiley.com/feed/24734209/most-recent"},
	{Name: "Physics in Medicine and Biology", URL: "https://iopscience.iop.org/journal/rss/0031-9155"},
	{Name: "International Journal of Radiation Oncology, Biology, Physics", URL: "https://www.redjournal.org/current.rss"},
	{Name: "Radiation Oncology", URL: "http://www.ro-journal.com/latest/rss"},
}

// LoadJournals reads a list of journals from path: a name line followed by
// a feed URL line, blank lines ignored. A trailing name without a URL is
// dropped. When the file does not exist the built-in list is returned.
func LoadJournals(path string, logger *slog.Logger) ([]internal.Journal, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if logger != nil {
			logger.Warn("journal list file not found, using embedded defaults", "path", path)
		}
		return append([]internal.Journal(nil), DefaultJournals...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal list: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal list: %w", err)
	}

	journals := make([]internal.Journal, 0, len(lines)/2)
	seen := make(map[string]int)
	for i := 0; i+1 < len(lines); i += 2 {
		j := internal.Journal{Name: strings.TrimPrefix(lines[i], "\ufeff"), URL: lines[i+1]}
		// a repeated name keeps its first position and the last URL
		if idx, ok := seen[j.Name]; ok {
			journals[idx].URL = j.URL
			continue
		}
		seen[j.Name] = len(journals)
		journals = append(journals, j)
	}
	return journals, nil
}

// Select keeps the journals whose names are in names, in list order. An
// empty names selects everything. Unknown names are returned separately.
func Select(journals []internal.Journal, names []string) (selected []internal.Journal, unknown []string) {
	if len(names) == 0 {
		return journals, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	for _, j := range journals {
		if want[j.Name] {
			selected = append(selected, j)
			delete(want, j.Name)
		}
	}
	for _, n := range names {
		if want[strings.TrimSpace(n)] {
			unknown = append(unknown, strings.TrimSpace(n))
			delete(want, strings.TrimSpace(n))
		}
	}
	return selected, unknown
}
