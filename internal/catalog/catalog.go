package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	types "github.com/fletar/fletar-backend/internal/domain"
)

//go:embed catalog.yaml
var defaultYAML []byte

type TruckType struct {
	Key     string   `yaml:"key" json:"key"`
	Name    string   `yaml:"name" json:"name"`
	Accepts []string `yaml:"accepts" json:"accepts"`
}

type Template struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

type ModuleDef struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Enabled     bool   `yaml:"enabled"`
}

type SettingDef struct {
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Secret      bool   `yaml:"secret"`
	Description string `yaml:"description"`
}

// Catalog is the static reference data shipped with the binary.
type Catalog struct {
	TruckTypes []TruckType         `yaml:"truck_types" json:"truck_types"`
	Provinces  []string            `yaml:"provinces" json:"provinces"`
	CargoTypes []string            `yaml:"cargo_types" json:"cargo_types"`
	RateModes  []string            `yaml:"rate_modes" json:"rate_modes"`
	Currencies []string            `yaml:"currencies" json:"currencies"`
	Templates  map[string]Template `yaml:"templates" json:"-"`
	Modules    []ModuleDef         `yaml:"modules" json:"-"`
	Settings   []SettingDef        `yaml:"settings" json:"-"`

	truckIndex    map[string]TruckType
	provinceIndex map[string]string
	compiled      map[string]compiledTemplate
}

type compiledTemplate struct {
	title *template.Template
	body  *template.Template
}

// Load parses the embedded catalog and, when path is set, overlays the file
// at path on top of it. Sections present in the override replace the
// defaults wholesale.
func Load(path string) (*Catalog, error) {
	c := &Catalog{}
	if err := yaml.Unmarshal(defaultYAML, c); err != nil {
		return nil, fmt.Errorf("parse embedded catalog: %w", err)
	}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the embedded catalog and panics if it is malformed.
func Default() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) index() error {
	c.truckIndex = make(map[string]TruckType, len(c.TruckTypes))
	for _, tt := range c.TruckTypes {
		if tt.Key == "" {
			return fmt.Errorf("catalog: truck type without key")
		}
		c.truckIndex[tt.Key] = tt
	}
	for _, tt := range c.TruckTypes {
		for _, a := range tt.Accepts {
			if _, ok := c.truckIndex[a]; !ok {
				return fmt.Errorf("catalog: truck type %q accepts unknown type %q", tt.Key, a)
			}
		}
	}

	c.provinceIndex = make(map[string]string, len(c.Provinces))
	for _, p := range c.Provinces {
		c.provinceIndex[foldKey(p)] = p
	}

	c.compiled = make(map[string]compiledTemplate, len(c.Templates))
	for event, t := range c.Templates {
		title, err := template.New(event + ".title").Option("missingkey=zero").Parse(t.Title)
		if err != nil {
			return fmt.Errorf("catalog: template %s title: %w", event, err)
		}
		body, err := template.New(event + ".body").Option("missingkey=zero").Parse(t.Body)
		if err != nil {
			return fmt.Errorf("catalog: template %s body: %w", event, err)
		}
		c.compiled[event] = compiledTemplate{title: title, body: body}
	}
	return nil
}

func (c *Catalog) TruckTypeValid(key string) bool {
	_, ok := c.truckIndex[key]
	return ok
}

// Compatible reports whether a truck of type offered can carry a load that
// requires type required. An empty requirement accepts any truck.
func (c *Catalog) Compatible(required, offered string) bool {
	if required == "" {
		return true
	}
	tt, ok := c.truckIndex[required]
	if !ok {
		return required == offered
	}
	for _, a := range tt.Accepts {
		if a == offered {
			return true
		}
	}
	return false
}

// Province returns the canonical spelling of name, matching case- and
// accent-insensitively.
func (c *Catalog) Province(name string) (string, bool) {
	key := foldKey(name)
	if p, ok := c.provinceIndex[key]; ok {
		return p, true
	}
	key = strings.TrimPrefix(key, "provincia de ")
	if alias, ok := provinceAliases[key]; ok {
		key = alias
	}
	p, ok := c.provinceIndex[key]
	return p, ok
}

func (c *Catalog) HasTemplate(event string) bool {
	_, ok := c.compiled[event]
	return ok
}

// Render executes the title and body templates for event.
func (c *Catalog) Render(event string, data map[string]interface{}) (string, string, error) {
	t, ok := c.compiled[event]
	if !ok {
		return "", "", fmt.Errorf("catalog: no template for event %q", event)
	}
	var title, body bytes.Buffer
	if err := t.title.Execute(&title, data); err != nil {
		return "", "", fmt.Errorf("render %s title: %w", event, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", event, err)
	}
	return title.String(), body.String(), nil
}

func (c *Catalog) DefaultModules() []*types.Module {
	out := make([]*types.Module, 0, len(c.Modules))
	for _, m := range c.Modules {
		out = append(out, &types.Module{
			Key:         m.Key,
			Name:        m.Name,
			Description: m.Description,
			Enabled:     m.Enabled,
		})
	}
	return out
}

func (c *Catalog) DefaultSettings() []*types.SystemSetting {
	out := make([]*types.SystemSetting, 0, len(c.Settings))
	for _, s := range c.Settings {
		out = append(out, &types.SystemSetting{
			Key:         s.Key,
			Value:       s.Value,
			Secret:      s.Secret,
			Description: s.Description,
		})
	}
	return out
}

// SettingDefault returns the catalog value for key, if any.
func (c *Catalog) SettingDefault(key string) (string, bool) {
	for _, s := range c.Settings {
		if s.Key == key {
			return s.Value, true
		}
	}
	return "", false
}

var provinceAliases = map[string]string{
	"caba":                   "ciudad autonoma de buenos aires",
	"capital federal":        "ciudad autonoma de buenos aires",
	"ciudad de buenos aires": "ciudad autonoma de buenos aires",
	"tierra del fuego, antartida e islas del atlantico sur": "tierra del fuego",
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

func foldKey(s string) string {
	return accentFolder.Replace(strings.ToLower(strings.Join(strings.Fields(s), " ")))
}
