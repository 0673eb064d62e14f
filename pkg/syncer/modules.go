package syncer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// GeneralModule collects namespaces without a known module prefix.
const GeneralModule = "general"

// ModuleMapper maps event and entity types ("inventory.adjustment") to their module ("inventory").
type ModuleMapper struct {
	known  map[string]struct{}
	strict bool
}

// NewModuleMapper builds a mapper over modules. In strict mode Validate rejects namespaces whose
// module is not listed.
func NewModuleMapper(modules []string, strict bool) *ModuleMapper {
	known := make(map[string]struct{}, len(modules))
	for _, module := range modules {
		module = strings.ToLower(strings.TrimSpace(module))
		if module != "" && module != GeneralModule {
			known[module] = struct{}{}
		}
	}
	return &ModuleMapper{known: known, strict: strict}
}

func (m *ModuleMapper) Modules() []string {
	out := make([]string, 0, len(m.known))
	for module := range m.known {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

// Resolve never fails: unknown prefixes fall back to GeneralModule.
func (m *ModuleMapper) Resolve(namespace string) string {
	prefix := modulePrefix(namespace)
	if _, ok := m.known[prefix]; ok {
		return prefix
	}
	return GeneralModule
}

func (m *ModuleMapper) Validate(namespace string) error {
	trimmed := strings.TrimSpace(namespace)
	if trimmed == "" {
		return errors.New("must not be empty")
	}
	if len(trimmed) > 255 {
		return errors.New("must be at most 255 characters")
	}
	if !m.strict {
		return nil
	}
	module, rest, found := strings.Cut(trimmed, ".")
	if !found || module == "" || rest == "" {
		return fmt.Errorf("%q is not of the form module.name", trimmed)
	}
	if _, ok := m.known[strings.ToLower(module)]; !ok {
		return fmt.Errorf("unknown module %q", module)
	}
	return nil
}

func modulePrefix(namespace string) string {
	prefix := strings.ToLower(strings.TrimSpace(namespace))
	if i := strings.IndexByte(prefix, '.'); i >= 0 {
		prefix = prefix[:i]
	}
	return prefix
}
