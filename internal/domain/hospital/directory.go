package hospital

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/cache"
)

const (
	namesCacheKey = "hospitals:names"
	namesCacheTTL = time.Hour
)

var (
	ErrDirectoryMissing = apperr.NotFound("facilities.html not found")
	ErrNoTable          = apperr.Internal("No table found in the HTML file")
)

// Directory lists the facility names published in the facilities HTML file.
type Directory struct {
	path   string
	cache  cache.KV
	logger zerolog.Logger
}

func NewDirectory(path string, kv cache.KV, logger zerolog.Logger) *Directory {
	return &Directory{path: path, cache: kv, logger: logger}
}

// Names returns the facility names, served from the cache for an hour after
// the first parse.
func (d *Directory) Names(ctx context.Context) ([]string, error) {
	if raw, err := d.cache.Get(ctx, namesCacheKey); err == nil {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err == nil {
			return names, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		d.logger.Warn().Err(err).Msg("hospital directory cache read failed")
	}

	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDirectoryMissing
		}
		return nil, err
	}
	defer f.Close()

	names, err := ParseNames(f)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(names); err == nil {
		if err := d.cache.Set(ctx, namesCacheKey, string(raw), namesCacheTTL); err != nil {
			d.logger.Warn().Err(err).Msg("hospital directory cache write failed")
		}
	}
	return names, nil
}

// ParseNames reads the first table in r, skips its header row and returns
// the non-empty text of each row's second cell.
func ParseNames(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	table := findFirst(doc, atom.Table)
	if table == nil {
		return nil, ErrNoTable
	}

	names := []string{}
	for i, row := range collect(table, atom.Tr) {
		if i == 0 {
			continue
		}
		var cells []*html.Node
		for c := row.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
				cells = append(cells, c)
			}
		}
		if len(cells) < 2 {
			continue
		}
		if name := strings.Join(strings.Fields(textOf(cells[1])), " "); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// collect returns descendants of n matching a in document order without
// descending into nested tables.
func collect(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == a {
				out = append(out, c)
				continue
			}
			if c.DataAtom == atom.Table {
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
