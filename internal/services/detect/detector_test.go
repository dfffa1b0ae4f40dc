package detect_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"convoy/internal/services"
	"convoy/internal/services/detect"
)

func writeMarker(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDetectMarkers(t *testing.T) {
	tests := []struct {
		name      string
		files     []string
		framework string
	}{
		{"go module", []string{"go.mod"}, "go"},
		{"maven", []string{"pom.xml"}, "maven"},
		{"gradle kotlin dsl", []string{"build.gradle.kts"}, "gradle"},
		{"node", []string{"package.json"}, "node"},
		{"python requirements", []string{"requirements.txt"}, "python"},
		{"build system outranks packaging", []string{"Dockerfile", "go.mod"}, "go"},
		{"bare docker", []string{"Dockerfile"}, "docker"},
		{"nothing", nil, detect.FrameworkUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, file := range tc.files {
				writeMarker(t, dir, file)
			}
			if got := detect.Detect(dir); got != tc.framework {
				t.Fatalf("expected %q, got %q", tc.framework, got)
			}
		})
	}
}

func TestTransformRejectsMissingWorkdir(t *testing.T) {
	detector := detect.NewDetector(nil)
	_, err := detector.Transform(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing workdir")
	}
	if services.Category(err) != services.CategoryTransform {
		t.Fatalf("expected transform category, got %q", services.Category(err))
	}
}

func TestDisplayName(t *testing.T) {
	if got := detect.DisplayName("go"); got != "Go" {
		t.Fatalf("expected Go, got %q", got)
	}
	if got := detect.DisplayName(""); got != "Unknown" {
		t.Fatalf("expected Unknown, got %q", got)
	}
}
