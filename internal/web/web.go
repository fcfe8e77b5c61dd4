// Package web holds the server-rendered views, compiled into the binary.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var files embed.FS

// Templates parses the embedded view templates. Panics on a malformed
// template, which can only happen at build time.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"seconds": seconds,
		"add1":    func(i int) int { return i + 1 },
	}).ParseFS(files, "templates/*.html"))
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1f", d.Seconds())
}
