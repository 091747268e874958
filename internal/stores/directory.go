package stores

import (
	"sort"
	"strings"
)

// DefaultBranches is the built-in warehouse code table. Entries from the
// config file are merged over it.
var DefaultBranches = map[string]string{
	"4201": "Selçuklu",
	"4202": "Meram",
	"4203": "Karatay",
	"4204": "Kule Site",
	"4205": "Kent Plaza",
	"4206": "Novada",
	"4207": "M1 Konya",
	"4210": "Akşehir",
	"4211": "Beyşehir",
	"4212": "Seydişehir",
	"4213": "Cihanbeyli",
	"4214": "Kulu",
	"4215": "Ilgın",
	"4216": "Ereğli",
	"4217": "Karapınar",
	"0601": "Ankara Kızılay",
	"0602": "Ankara Optimum",
	"0701": "Antalya Merkez",
	"3401": "İstanbul Bağcılar",
	"9000": "Merkez Depo",
	"9001": "Online Depo",
}

// Directory maps warehouse codes to store display names. It is immutable
// after construction and safe for concurrent use.
type Directory struct {
	names map[string]string
	all   []string
}

// New builds a directory from the defaults overlaid with overrides. An
// override with an empty name removes the default entry.
func New(defaults, overrides map[string]string) *Directory {
	names := make(map[string]string, len(defaults)+len(overrides))
	for code, name := range defaults {
		names[strings.TrimSpace(code)] = name
	}
	for code, name := range overrides {
		code = strings.TrimSpace(code)
		if name == "" {
			delete(names, code)
			continue
		}
		names[code] = name
	}

	seen := make(map[string]struct{}, len(names))
	all := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		all = append(all, n)
	}
	sort.Strings(all)

	return &Directory{names: names, all: all}
}

// Name maps the first comma separated token of code. Unknown codes come back
// unchanged, empty input gives an empty name.
func (d *Directory) Name(code string) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	first := strings.TrimSpace(strings.SplitN(code, ",", 2)[0])
	if name, ok := d.names[first]; ok {
		return name
	}
	return code
}

// Lookup reports whether code (first token) is a known branch.
func (d *Directory) Lookup(code string) (string, bool) {
	first := strings.TrimSpace(strings.SplitN(code, ",", 2)[0])
	name, ok := d.names[first]
	return name, ok
}

// Names returns every known store name, sorted and de-duplicated.
func (d *Directory) Names() []string {
	out := make([]string, len(d.all))
	copy(out, d.all)
	return out
}

// Codes returns the known warehouse codes, sorted.
func (d *Directory) Codes() []string {
	out := make([]string, 0, len(d.names))
	for c := range d.names {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (d *Directory) Len() int { return len(d.names) }
