package transport

import "testing"

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`a < b && c > "d"`)
	want := `a &lt; b &amp;&amp; c &gt; "d"`
	if got != want {
		t.Fatalf("EscapeHTML = %q, want %q", got, want)
	}
}

func TestMessageBuilders(t *testing.T) {
	kb := Keyboard{{{Text: "x", Data: "y"}}}
	m := HTMLText("<b>hi</b>").WithKeyboard(kb)
	if m.ParseMode != HTML || len(m.Keyboard) != 1 {
		t.Fatalf("unexpected message %+v", m)
	}
	if PlainText("hi").ParseMode != Plain {
		t.Fatal("PlainText must not set a parse mode")
	}
}
