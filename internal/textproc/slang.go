package textproc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// builtinSlang covers the most frequent informal spellings seen in
// Indonesian comment sections. A CSV dictionary extends or overrides it.
var builtinSlang = map[string]string{
	"gak":    "tidak",
	"ga":     "tidak",
	"nggak":  "tidak",
	"ngga":   "tidak",
	"enggak": "tidak",
	"tdk":    "tidak",
	"gk":     "tidak",
	"bgt":    "banget",
	"bngt":   "banget",
	"bgs":    "bagus",
	"mantul": "mantap",
	"mntp":   "mantap",
	"krn":    "karena",
	"karna":  "karena",
	"sm":     "sama",
	"aja":    "saja",
	"aj":     "saja",
	"udh":    "sudah",
	"udah":   "sudah",
	"sdh":    "sudah",
	"blm":    "belum",
	"gmn":    "bagaimana",
	"gimana": "bagaimana",
	"knp":    "kenapa",
	"bkn":    "bukan",
	"lbh":    "lebih",
	"jg":     "juga",
	"tp":     "tapi",
	"trs":    "terus",
	"emg":    "memang",
	"bener":  "benar",
	"dr":     "dari",
	"kalo":   "kalau",
	"klo":    "kalau",
	"org":    "orang",
	"skrg":   "sekarang",
	"sy":     "saya",
	"gue":    "saya",
	"gw":     "saya",
	"lu":     "kamu",
	"lo":     "kamu",
	"enak2":  "enak",
}

// SlangDictionary maps informal tokens to their formal form.
type SlangDictionary struct {
	entries map[string]string
}

// NewSlangDictionary returns the built-in dictionary merged with extra.
func NewSlangDictionary(extra map[string]string) *SlangDictionary {
	entries := make(map[string]string, len(builtinSlang)+len(extra))
	for k, v := range builtinSlang {
		entries[k] = v
	}
	for k, v := range extra {
		entries[strings.ToLower(k)] = strings.ToLower(v)
	}
	return &SlangDictionary{entries: entries}
}

// LoadSlangCSV reads a two-column CSV with a "slang,formal" header.
func LoadSlangCSV(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read slang header: %w", err)
	}
	slangCol, formalCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "slang":
			slangCol = i
		case "formal":
			formalCol = i
		}
	}
	if slangCol < 0 || formalCol < 0 {
		return nil, errors.New("slang dictionary requires slang and formal columns")
	}

	out := make(map[string]string)
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read slang row: %w", err)
		}
		if slangCol >= len(rec) || formalCol >= len(rec) {
			continue
		}
		slang := strings.TrimSpace(rec[slangCol])
		formal := strings.TrimSpace(rec[formalCol])
		if slang != "" && formal != "" {
			out[slang] = formal
		}
	}
	return out, nil
}

// LoadSlangFile loads the first readable path. A missing file is not an
// error; it returns the built-in dictionary and the path that was used.
func LoadSlangFile(paths ...string) (*SlangDictionary, string, error) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("failed to open slang dictionary %s: %w", p, err)
		}
		extra, err := LoadSlangCSV(f)
		_ = f.Close()
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", p, err)
		}
		return NewSlangDictionary(extra), p, nil
	}
	return NewSlangDictionary(nil), "", nil
}

// Expand returns the formal form of word, or word unchanged.
func (d *SlangDictionary) Expand(word string) string {
	if v, ok := d.entries[word]; ok {
		return v
	}
	return word
}

// Len returns the number of entries.
func (d *SlangDictionary) Len() int {
	return len(d.entries)
}
