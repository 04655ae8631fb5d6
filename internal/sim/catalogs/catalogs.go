package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"deepstore.ai/internal/sim/model"
)

// DefaultStackLimit applies to kinds without an explicit stack_limit.
const DefaultStackLimit = 75

type Catalogs struct {
	Items      ItemCatalog
	Recipes    RecipeCatalog
	Buildables BuildableCatalog
}

type ItemCatalog struct {
	Palette       []string
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Category string `json:"category"` // "MATERIAL","FUEL","DRUG","IMPLANT","FOOD","COMPONENT","WEAPON","APPAREL"

	StackLimit int  `json:"stack_limit,omitempty"`
	Storeable  bool `json:"storeable"`
	Resource   bool `json:"resource"`

	// Stuff categories this kind can be built from (e.g. "METALLIC","WOODY").
	StuffCategories []string `json:"stuff_categories,omitempty"`

	Drug    bool `json:"drug,omitempty"`
	Implant bool `json:"implant,omitempty"`
}

func (d ItemDef) IsStuff() bool { return len(d.StuffCategories) > 0 }

func (d ItemDef) Medical() bool { return d.Drug || d.Implant }

// CanMake reports whether this kind is a valid material for b.
func (d ItemDef) CanMake(b BuildableDef) bool {
	if !d.IsStuff() || !b.MadeFromStuff() {
		return false
	}
	for _, have := range d.StuffCategories {
		for _, want := range b.StuffCategories {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (d ItemDef) LabelCap() string {
	l := d.Label
	if l == "" {
		l = strings.ToLower(strings.ReplaceAll(d.ID, "_", " "))
	}
	if l == "" {
		return ""
	}
	return strings.ToUpper(l[:1]) + l[1:]
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

type RecipeDef struct {
	RecipeID  string      `json:"recipe_id"`
	Station   string      `json:"station"`
	Inputs    []ItemCount `json:"inputs"`
	Outputs   []ItemCount `json:"outputs"`
	TimeTicks int         `json:"time_ticks"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type BuildableCatalog struct {
	ByID   map[string]BuildableDef
	Digest string
}

type BuildableDef struct {
	ID              string     `json:"id"`
	Label           string     `json:"label,omitempty"`
	StuffCategories []string   `json:"stuff_categories,omitempty"`
	StuffCount      int        `json:"stuff_count,omitempty"`
	Fuel            *FuelProps `json:"fuel,omitempty"`
}

func (b BuildableDef) MadeFromStuff() bool { return len(b.StuffCategories) > 0 }

type FuelProps struct {
	Kinds      []string `json:"kinds,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Capacity   int      `json:"capacity,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	schemas := filepath.Join(configDir, "schemas")
	if err := loadItems(filepath.Join(configDir, "items.json"), schemas, &c.Items); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), schemas, &c.Recipes); err != nil {
		return nil, err
	}
	if err := loadBuildables(filepath.Join(configDir, "buildables.json"), schemas, &c.Buildables); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromDefs builds catalogs from in-memory definitions.
func FromDefs(items []ItemDef, recipes []RecipeDef, buildables []BuildableDef) (*Catalogs, error) {
	var c Catalogs
	rawItems, _ := json.Marshal(items)
	if err := indexItems(items, rawItems, &c.Items); err != nil {
		return nil, err
	}
	rawRecipes, _ := json.Marshal(recipes)
	if err := indexRecipes(recipes, rawRecipes, &c.Recipes); err != nil {
		return nil, err
	}
	rawBuildables, _ := json.Marshal(buildables)
	if err := indexBuildables(buildables, rawBuildables, &c.Buildables); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) check() error {
	for _, r := range c.Recipes.ByID {
		for _, out := range r.Outputs {
			if _, ok := c.Items.Defs[out.Item]; !ok {
				return fmt.Errorf("recipe %s: unknown output %q", r.RecipeID, out.Item)
			}
		}
	}
	return nil
}

func (c *ItemCatalog) Def(kind string) (ItemDef, bool) {
	if c == nil || c.Defs == nil {
		return ItemDef{}, false
	}
	d, ok := c.Defs[kind]
	return d, ok
}

func (c *ItemCatalog) StackLimit(kind string) int {
	if d, ok := c.Def(kind); ok && d.StackLimit > 0 {
		return d.StackLimit
	}
	return DefaultStackLimit
}

func (c *ItemCatalog) FilterKinds(kinds ...string) model.Filter {
	return model.AllowKinds(kinds...)
}

func (c *ItemCatalog) FilterCategories(categories ...string) model.Filter {
	set := map[string]struct{}{}
	for _, cat := range categories {
		set[cat] = struct{}{}
	}
	return func(kind string) bool {
		d, ok := c.Def(kind)
		if !ok {
			return false
		}
		_, hit := set[d.Category]
		return hit
	}
}

// FuelFilter admits any kind named by p or belonging to one of its categories.
func (c *ItemCatalog) FuelFilter(p FuelProps) model.Filter {
	kinds := model.AllowKinds(p.Kinds...)
	cats := c.FilterCategories(p.Categories...)
	return func(kind string) bool { return kinds(kind) || cats(kind) }
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// readValidated reads a catalog file and checks it against <schemaDir>/<base>.schema.json
// when that schema exists.
func readValidated(path, schemaDir string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	schemaPath := filepath.Join(schemaDir, name+".schema.json")
	if _, err := os.Stat(schemaPath); err != nil {
		if os.IsNotExist(err) {
			return raw, nil
		}
		return nil, err
	}
	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("%s: compile schema: %w", filepath.Base(schemaPath), err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return raw, nil
}

func loadItems(path, schemaDir string, out *ItemCatalog) error {
	raw, err := readValidated(path, schemaDir)
	if err != nil {
		return err
	}
	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	return indexItems(defs, raw, out)
}

func indexItems(defs []ItemDef, raw []byte, out *ItemCatalog) error {
	out.DefsDigest = sha256Hex(raw)
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.StackLimit < 0 {
			return fmt.Errorf("items.json: %s: negative stack_limit", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadRecipes(path, schemaDir string, out *RecipeCatalog) error {
	raw, err := readValidated(path, schemaDir)
	if err != nil {
		return err
	}
	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	return indexRecipes(defs, raw, out)
}

func indexRecipes(defs []RecipeDef, raw []byte, out *RecipeCatalog) error {
	out.Digest = sha256Hex(raw)
	out.ByID = map[string]RecipeDef{}
	for _, r := range defs {
		if r.RecipeID == "" {
			return fmt.Errorf("recipes.json: empty recipe_id")
		}
		out.ByID[r.RecipeID] = r
	}
	return nil
}

func loadBuildables(path, schemaDir string, out *BuildableCatalog) error {
	raw, err := readValidated(path, schemaDir)
	if err != nil {
		// Buildables are optional: a host without construction has none.
		if os.IsNotExist(err) {
			out.ByID = map[string]BuildableDef{}
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	var defs []BuildableDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("buildables.json: %w", err)
	}
	return indexBuildables(defs, raw, out)
}

func indexBuildables(defs []BuildableDef, raw []byte, out *BuildableCatalog) error {
	out.Digest = sha256Hex(raw)
	out.ByID = map[string]BuildableDef{}
	for _, b := range defs {
		if b.ID == "" {
			return fmt.Errorf("buildables.json: empty id")
		}
		out.ByID[b.ID] = b
	}
	return nil
}
