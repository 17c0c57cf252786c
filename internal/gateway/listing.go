// Directory Lister (4.E): renders an Apache-style HTML index for a
// distribution's remainder path, ported line-for-line from the upstream
// Jinja2 template (SPEC_FULL.md §4.E implementation note).
package gateway

import (
	"bytes"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const listingTemplateSrc = `<html>
<head><title>Index of {{.Path}}</title></head>
<body bgcolor="white">
<h1>Index of {{.Path}}</h1>
<hr><pre>
{{- if .ShowParent}}
<a href="../">../</a>
{{- end}}
{{- range .Entries}}
<a href="{{.Name}}">{{.PaddedName}}</a>{{.Padding}}{{.DateStr}}  {{.SizeStr}}
{{- end}}
</pre><hr></body>
</html>
`

var listingTemplate = template.Must(template.New("listing").Parse(listingTemplateSrc))

type listingRow struct {
	Name       string
	PaddedName string
	Padding    string
	DateStr    string
	SizeStr    string
}

type listingView struct {
	Path       string
	ShowParent bool
	Entries    []listingRow
}

// RenderListing renders entries into the exact HTML page format the
// upstream's render_html produces: names padded/truncated to a 100-char
// column, dates as "02-Jan-2006 15:04", sizes human-readable
// (filesizeformat equivalent), and "../" omitted when atRoot is set (the
// dispatcher sets it only at the content-prefix root).
func RenderListing(path string, entries []DirListEntry, atRoot bool) (string, error) {
	sorted := make([]DirListEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	rows := make([]listingRow, 0, len(sorted))
	for _, e := range sorted {
		name := e.Name
		display := name
		if len(display) > 100 {
			display = display[:97] + "..>"
		}
		pad := 100 - len(display)
		if pad < 1 {
			pad = 1
		}
		rows = append(rows, listingRow{
			Name:       name,
			PaddedName: display,
			Padding:    strings.Repeat(" ", pad),
			DateStr:    e.CreatedAt.UTC().Format("02-Jan-2006 15:04"),
			SizeStr:    formatSize(e.Size),
		})
	}

	view := listingView{
		Path:       path,
		ShowParent: !atRoot,
		Entries:    rows,
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DirListEntry is the rendering-ready shape of a models.DirEntry: Size nil
// means "directory" (rendered as "-").
type DirListEntry struct {
	Name      string
	CreatedAt time.Time
	Size      *int64
}

func formatSize(size *int64) string {
	if size == nil {
		return "-"
	}
	n := *size
	const unit = 1024
	if n < unit {
		return itoa(n) + "B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	value := float64(n) / float64(div)
	return trimFloat(value) + units[exp]
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

func trimFloat(v float64) string {
	whole := int64(v)
	frac := int64((v-float64(whole))*10 + 0.5)
	if frac == 10 {
		whole++
		frac = 0
	}
	return itoa(whole) + "." + itoa(frac) + " "
}

// BuildCheckpointListingPath is the synthetic remainder used when rendering
// the "list all checkpoint timestamps" page 4.B falls back to.
func BuildCheckpointListingPath(repositoryID uuid.UUID) string {
	return "/" + repositoryID.String() + "/"
}
