package buildengine

import (
	"testing"

	"github.com/R3E-Network/service_layer/domain/builder"
)

func TestHasPublishedPage(t *testing.T) {
	if hasPublishedPage(nil) {
		t.Fatal("hasPublishedPage(nil) = true, want false")
	}
	if hasPublishedPage([]builder.Page{{IsPublished: false}}) {
		t.Fatal("hasPublishedPage() = true with only unpublished pages")
	}
	if !hasPublishedPage([]builder.Page{{IsPublished: false}, {IsPublished: true}}) {
		t.Fatal("hasPublishedPage() = false with one published page present")
	}
}

func TestManifestChecksum_OrderSensitive(t *testing.T) {
	a := []builder.ManifestPage{{Hash: "aaa"}, {Hash: "bbb"}}
	b := []builder.ManifestPage{{Hash: "bbb"}, {Hash: "aaa"}}

	if manifestChecksum(a) == manifestChecksum(b) {
		t.Fatal("expected reordering pages to change the manifest checksum")
	}
}

func TestManifestChecksum_Deterministic(t *testing.T) {
	pages := []builder.ManifestPage{{Hash: "aaa"}, {Hash: "bbb"}}
	if manifestChecksum(pages) != manifestChecksum(pages) {
		t.Fatal("expected manifestChecksum to be deterministic for identical input")
	}
}

func TestManifestChecksum_ContentSensitive(t *testing.T) {
	a := []builder.ManifestPage{{Hash: "aaa"}}
	b := []builder.ManifestPage{{Hash: "aab"}}
	if manifestChecksum(a) == manifestChecksum(b) {
		t.Fatal("expected a different page hash to change the manifest checksum")
	}
}
