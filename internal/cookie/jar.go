package cookie

import (
	"net/http"
	"strconv"
	"strings"
)

// MaxChunkSize keeps each cookie well under the 4096 byte browser limit once
// name and attributes are added.
const MaxChunkSize = 3180

// Jar reads and writes the provider session cookie. Values larger than
// MaxChunkSize are split across <name>.0, <name>.1, ...; a value that fits is
// stored under <name> alone.
type Jar struct {
	name string
	opts Options
}

// NewJar returns a jar for the named session cookie.
func NewJar(name string, opts Options) Jar {
	if name == "" {
		name = DefaultSessionCookie
	}
	return Jar{name: name, opts: opts}
}

// Name returns the base cookie name.
func (j Jar) Name() string {
	return j.name
}

func (j Jar) chunkName(i int) string {
	return j.name + "." + strconv.Itoa(i)
}

// Read reassembles the session cookie value from r.
func (j Jar) Read(r *http.Request) (string, bool) {
	if c, err := r.Cookie(j.name); err == nil && c.Value != "" {
		return c.Value, true
	}

	var b strings.Builder
	for i := 0; ; i++ {
		c, err := r.Cookie(j.chunkName(i))
		if err != nil {
			break
		}
		b.WriteString(c.Value)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

// Write records value in d, clearing chunks from r that the new value does
// not overwrite.
func (j Jar) Write(d *Delta, r *http.Request, value string) {
	if len(value) <= MaxChunkSize {
		d.Set(j.opts.cookie(j.name, value))
		j.clearChunks(d, r, 0)
		return
	}

	n := 0
	for start := 0; start < len(value); start += MaxChunkSize {
		end := min(start+MaxChunkSize, len(value))
		d.Set(j.opts.cookie(j.chunkName(n), value[start:end]))
		n++
	}
	if _, err := r.Cookie(j.name); err == nil {
		d.Set(j.opts.clear(j.name))
	}
	j.clearChunks(d, r, n)
}

// Clear records instructions removing every session cookie present in r.
// The base name is always cleared so a sign-out is visible even when the
// request carried no cookie.
func (j Jar) Clear(d *Delta, r *http.Request) {
	d.Set(j.opts.clear(j.name))
	j.clearChunks(d, r, 0)
}

func (j Jar) clearChunks(d *Delta, r *http.Request, from int) {
	prefix := j.name + "."
	for _, c := range r.Cookies() {
		suffix, ok := strings.CutPrefix(c.Name, prefix)
		if !ok {
			continue
		}
		i, err := strconv.Atoi(suffix)
		if err != nil || i < from {
			continue
		}
		d.Set(j.opts.clear(c.Name))
	}
}
