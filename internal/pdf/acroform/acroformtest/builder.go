// Package acroformtest builds small single-page AcroForm PDFs for tests.
package acroformtest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	catalogObj = 1
	pagesObj   = 2
	pageObj    = 3
	formObj    = 4
	apObj      = 5
)

// Builder assembles the objects of a form document
type Builder struct {
	objects map[int]string
	next    int
	fields  []int
	annots  []int
	y       int
}

// New starts an empty form document
func New() *Builder {
	b := &Builder{objects: make(map[int]string), next: apObj + 1, y: 740}
	b.objects[apObj] = "<< /Type /XObject /Subtype /Form /BBox [0 0 10 10] /Length 0 >>\nstream\n\nendstream"
	return b
}

func (b *Builder) reserve() int {
	n := b.next
	b.next++
	return n
}

func (b *Builder) rect() string {
	r := fmt.Sprintf("[72 %d 272 %d]", b.y, b.y+16)
	b.y -= 24
	return r
}

func (b *Builder) widget(extra string) string {
	return fmt.Sprintf("/Type /Annot /Subtype /Widget /P %d 0 R /Rect %s %s", pageObj, b.rect(), extra)
}

func appearance(onState string) string {
	return fmt.Sprintf("/AP << /N << /%s %d 0 R /Off %d 0 R >> >>", onState, apObj, apObj)
}

func literal(s string) string {
	return "(" + strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s) + ")"
}

// TextField adds a text field with an optional initial value
func (b *Builder) TextField(name, value string) *Builder {
	return b.textField(name, value, "")
}

// ReadOnlyTextField adds a text field with the ReadOnly flag set
func (b *Builder) ReadOnlyTextField(name, value string) *Builder {
	return b.textField(name, value, " /Ff 1")
}

func (b *Builder) textField(name, value, flags string) *Builder {
	n := b.reserve()
	v := ""
	if value != "" {
		v = " /V " + literal(value)
	}
	b.objects[n] = fmt.Sprintf("<< /FT /Tx /T %s%s%s /DA (/Helv 10 Tf 0 g) %s >>", literal(name), v, flags, b.widget(""))
	b.fields = append(b.fields, n)
	b.annots = append(b.annots, n)
	return b
}

// ComboBox adds a combo box whose options are their own export values
func (b *Builder) ComboBox(name string, options ...string) *Builder {
	opts := make([]string, len(options))
	for i, o := range options {
		opts[i] = literal(o)
	}
	return b.choice(name, strings.Join(opts, " "))
}

// ComboBoxWithLabels adds a combo box of [export display] pairs
func (b *Builder) ComboBoxWithLabels(name string, pairs ...[2]string) *Builder {
	opts := make([]string, len(pairs))
	for i, p := range pairs {
		opts[i] = "[" + literal(p[0]) + " " + literal(p[1]) + "]"
	}
	return b.choice(name, strings.Join(opts, " "))
}

func (b *Builder) choice(name, opt string) *Builder {
	n := b.reserve()
	b.objects[n] = fmt.Sprintf("<< /FT /Ch /Ff 131072 /T %s /Opt [%s] /DA (/Helv 10 Tf 0 g) %s >>",
		literal(name), opt, b.widget(""))
	b.fields = append(b.fields, n)
	b.annots = append(b.annots, n)
	return b
}

// CheckBox adds a single checkbox that is off
func (b *Builder) CheckBox(name, onState string) *Builder {
	n := b.reserve()
	b.objects[n] = fmt.Sprintf("<< /FT /Btn /T %s /V /Off /AS /Off %s >>",
		literal(name), b.widget(appearance(onState)))
	b.fields = append(b.fields, n)
	b.annots = append(b.annots, n)
	return b
}

// RadioGroup adds a radio button field with one widget per option, none selected
func (b *Builder) RadioGroup(name string, options ...string) *Builder {
	return b.buttonGroup(name, 49152, options)
}

// CheckBoxGroup adds one checkbox field whose widgets carry distinct on-states
func (b *Builder) CheckBoxGroup(name string, options ...string) *Builder {
	return b.buttonGroup(name, 0, options)
}

// PushButton adds a push button, which is never fillable
func (b *Builder) PushButton(name string) *Builder {
	n := b.reserve()
	b.objects[n] = fmt.Sprintf("<< /FT /Btn /Ff 65536 /T %s %s >>", literal(name), b.widget(""))
	b.fields = append(b.fields, n)
	b.annots = append(b.annots, n)
	return b
}

func (b *Builder) buttonGroup(name string, flags int, options []string) *Builder {
	parent := b.reserve()
	kids := make([]string, len(options))
	for i, o := range options {
		k := b.reserve()
		b.objects[k] = fmt.Sprintf("<< /Parent %d 0 R /AS /Off %s >>", parent, b.widget(appearance(o)))
		kids[i] = fmt.Sprintf("%d 0 R", k)
		b.annots = append(b.annots, k)
	}
	b.objects[parent] = fmt.Sprintf("<< /FT /Btn /Ff %d /T %s /V /Off /Kids [%s] >>",
		flags, literal(name), strings.Join(kids, " "))
	b.fields = append(b.fields, parent)
	return b
}

func refs(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d 0 R", n)
	}
	return strings.Join(parts, " ")
}

// Bytes renders the document with a classic cross-reference table
func (b *Builder) Bytes() []byte {
	objects := make(map[int]string, len(b.objects)+4)
	for n, body := range b.objects {
		objects[n] = body
	}
	objects[catalogObj] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R /AcroForm %d 0 R >>", pagesObj, formObj)
	objects[pagesObj] = fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", pageObj)
	objects[pageObj] = fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Annots [%s] >>",
		pagesObj, refs(b.annots))
	objects[formObj] = fmt.Sprintf("<< /Fields [%s] /DA (/Helv 0 Tf 0 g) >>", refs(b.fields))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, b.next)
	for n := 1; n < b.next; n++ {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, objects[n])
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", b.next)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < b.next; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", b.next, catalogObj, xref)
	return buf.Bytes()
}

// WriteFile writes the document into dir and returns its path
func (b *Builder) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.Bytes(), 0o600); err != nil {
		t.Fatalf("failed to write test PDF: %v", err)
	}
	return path
}
