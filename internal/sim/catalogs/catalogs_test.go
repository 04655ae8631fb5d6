package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigs(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	steel, ok := cats.Items.Def("STEEL")
	if !ok {
		t.Fatalf("expected STEEL def")
	}
	wall := cats.Buildables.ByID["WALL"]
	if !steel.CanMake(wall) {
		t.Fatalf("expected steel to make walls")
	}
	if chem, _ := cats.Items.Def("CHEMFUEL"); chem.CanMake(wall) {
		t.Fatalf("chemfuel is not a stuff")
	}
	if got := cats.Items.StackLimit("CHEMFUEL"); got != 150 {
		t.Fatalf("expected CHEMFUEL stack limit 150, got %d", got)
	}
	if got := cats.Items.StackLimit("NOT_A_KIND"); got != DefaultStackLimit {
		t.Fatalf("expected default stack limit, got %d", got)
	}
	if cats.Items.DefsDigest == "" || cats.Recipes.Digest == "" || cats.Buildables.Digest == "" {
		t.Fatalf("expected digests to be set")
	}
	if len(cats.Items.Palette) != len(cats.Items.Defs) {
		t.Fatalf("palette/defs mismatch: %d vs %d", len(cats.Items.Palette), len(cats.Items.Defs))
	}
}

func TestFuelFilter(t *testing.T) {
	cats, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	gen := cats.Buildables.ByID["CHEMFUEL_GENERATOR"]
	f := cats.Items.FuelFilter(*gen.Fuel)
	if !f.Allows("CHEMFUEL") || f.Allows("WOOD") {
		t.Fatalf("generator filter should take chemfuel only")
	}
	torch := cats.Buildables.ByID["TORCH_LAMP"]
	f = cats.Items.FuelFilter(*torch.Fuel)
	if !f.Allows("WOOD") || f.Allows("CHEMFUEL") {
		t.Fatalf("torch filter should take wood only")
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, "../../../configs/schemas/items.schema.json", filepath.Join(dir, "schemas", "items.schema.json"))
	writeFile(t, filepath.Join(dir, "items.json"), `[{"id":"steel","category":"MATERIAL","storeable":true,"resource":true}]`)
	writeFile(t, filepath.Join(dir, "recipes.json"), `[]`)

	_, err := Load(dir)
	if err == nil {
		t.Fatalf("expected schema violation for lowercase id")
	}
	if !strings.Contains(err.Error(), "items.json") {
		t.Fatalf("expected error to name items.json, got %v", err)
	}
}

func TestLoadWithoutSchemasOrBuildables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "items.json"), `[{"id":"WOOD","category":"MATERIAL","storeable":true,"resource":true}]`)
	writeFile(t, filepath.Join(dir, "recipes.json"), `[]`)

	cats, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cats.Buildables.ByID) != 0 {
		t.Fatalf("expected no buildables, got %d", len(cats.Buildables.ByID))
	}
}

func TestFromDefsRejectsUnknownOutput(t *testing.T) {
	_, err := FromDefs(
		[]ItemDef{{ID: "WOOD", Category: "MATERIAL"}},
		[]RecipeDef{{RecipeID: "r", Outputs: []ItemCount{{Item: "BOW", Count: 1}}}},
		nil,
	)
	if err == nil {
		t.Fatalf("expected unknown output error")
	}
}

func TestLabelCap(t *testing.T) {
	if got := (ItemDef{ID: "GRANITE_BLOCKS"}).LabelCap(); got != "Granite blocks" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := (ItemDef{ID: "X", Label: "steel"}).LabelCap(); got != "Steel" {
		t.Fatalf("unexpected label %q", got)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	b, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read %s: %v", src, err)
	}
	writeFile(t, dst, string(b))
}
