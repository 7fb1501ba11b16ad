package access

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

type Permission struct {
	Resource string   `yaml:"resource"`
	Actions  []string `yaml:"actions"`
}

type Role struct {
	Description string       `yaml:"description"`
	Permissions []Permission `yaml:"permissions"`
}

type RBACPolicy struct {
	DefaultRole string              `yaml:"default_role"`
	Roles       map[string]Role     `yaml:"roles"`
	Inheritance map[string][]string `yaml:"inheritance"`
}

// RBAC answers role permission questions. Roles come from the principal,
// so the policy only maps roles to resource:action grants.
type RBAC struct {
	mu          sync.RWMutex
	policy      *RBACPolicy
	policyCache map[string]map[string]bool // role -> "resource:action" -> allowed
}

func NewRBAC() *RBAC {
	return &RBAC{policyCache: make(map[string]map[string]bool)}
}

// NewDefaultRBAC returns an RBAC with the embedded policy loaded.
func NewDefaultRBAC() *RBAC {
	r := NewRBAC()
	if err := r.LoadPolicyBytes(defaultPolicy); err != nil {
		panic(fmt.Sprintf("embedded RBAC policy is invalid: %v", err))
	}
	return r
}

// LoadRBAC loads the policy file, or the embedded policy when path is empty.
func LoadRBAC(path string) (*RBAC, error) {
	if path == "" {
		return NewDefaultRBAC(), nil
	}
	r := NewRBAC()
	if err := r.LoadPolicy(path); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadPolicy loads RBAC policy from YAML file
func (r *RBAC) LoadPolicy(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	return r.LoadPolicyBytes(data)
}

func (r *RBAC) LoadPolicyBytes(data []byte) error {
	var policy RBACPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}
	if len(policy.Roles) == 0 {
		return fmt.Errorf("policy defines no roles")
	}

	r.mu.Lock()
	r.policy = &policy
	r.policyCache = make(map[string]map[string]bool)
	r.mu.Unlock()

	slog.Info("RBAC policy loaded", "roles", len(policy.Roles))
	return nil
}

// RoleClosure returns role and every role it inherits.
func (r *RBAC) RoleClosure(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roleClosure(role)
}

func (r *RBAC) roleClosure(role string) []string {
	if r.policy == nil {
		return nil
	}
	if role == "" {
		role = r.policy.DefaultRole
	}
	if role == "" {
		return nil
	}

	seen := map[string]bool{role: true}
	result := []string{role}
	queue := []string{role}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, inherited := range r.policy.Inheritance[current] {
			if !seen[inherited] {
				seen[inherited] = true
				result = append(result, inherited)
				queue = append(queue, inherited)
			}
		}
	}
	return result
}

// Can checks if a role can perform an action on a resource
func (r *RBAC) Can(role, resource, action string) bool {
	cacheKey := resource + ":" + action

	r.mu.RLock()
	if r.policy == nil {
		r.mu.RUnlock()
		slog.Warn("RBAC policy not loaded")
		return false
	}
	if allowed, found := r.policyCache[role][cacheKey]; found {
		r.mu.RUnlock()
		return allowed
	}
	allowed := r.evaluate(role, resource, action)
	r.mu.RUnlock()

	r.mu.Lock()
	if r.policyCache[role] == nil {
		r.policyCache[role] = make(map[string]bool)
	}
	r.policyCache[role][cacheKey] = allowed
	r.mu.Unlock()

	return allowed
}

func (r *RBAC) evaluate(role, resource, action string) bool {
	for _, roleName := range r.roleClosure(role) {
		def, exists := r.policy.Roles[roleName]
		if !exists {
			continue
		}
		for _, perm := range def.Permissions {
			if perm.Resource != "*" && perm.Resource != resource {
				continue
			}
			for _, act := range perm.Actions {
				if act == "*" || act == action {
					return true
				}
			}
		}
	}
	return false
}
