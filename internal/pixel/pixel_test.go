package pixel

import (
	"bytes"
	"image/gif"
	"testing"

	"github.com/klirineu/offertrack-web/internal/domain"
)

func decodeSize(t *testing.T, d domain.Directive) (int, int) {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, d); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cfg, err := gif.DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestNotCloneIsSinglePixel(t *testing.T) {
	w, h := decodeSize(t, domain.NotClone())
	if w != 1 || h != 1 {
		t.Fatalf("size = %dx%d, want 1x1", w, h)
	}
	if Read(w, h).IsClone {
		t.Fatalf("1x1 must read as not a clone")
	}
}

func TestDirectiveRoundTrip(t *testing.T) {
	target := "https://brand.example/offer"
	for _, at := range []domain.ActionType{domain.ActionRedirect, domain.ActionReplaceLinks, domain.ActionReplaceImages} {
		w, h := decodeSize(t, domain.Directive{IsClone: true, Action: &domain.Action{Type: at, Data: target}})
		v := Read(w, h)
		if !v.IsClone || v.Action != at || v.TargetHash != TargetHash(target) {
			t.Fatalf("%s: read %+v from %dx%d", at, v, w, h)
		}
	}
}

func TestCloneWithoutAction(t *testing.T) {
	w, h := decodeSize(t, domain.Directive{IsClone: true})
	v := Read(w, h)
	if !v.IsClone || v.Action != domain.ActionNone || h != 1 {
		t.Fatalf("read %+v from %dx%d", v, w, h)
	}
}

func TestTargetHashRange(t *testing.T) {
	for _, s := range []string{"", "a", "https://brand.example/offer?x=1"} {
		if h := TargetHash(s); h < 0 || h > 0xfff {
			t.Fatalf("TargetHash(%q) = %d out of range", s, h)
		}
	}
}
