package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a warden manifest from the provided path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc Config
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	if err := doc.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	svc := doc.Service
	svc.Workdir = resolveWorkdir(baseDir, os.ExpandEnv(svc.Workdir))

	var inlineEnv map[string]string
	if len(svc.Env) > 0 {
		inlineEnv = make(map[string]string, len(svc.Env))
		for k, v := range svc.Env {
			inlineEnv[k] = os.ExpandEnv(v)
		}
	}

	var fileEnv map[string]string
	if svc.EnvFromFile != "" {
		expanded := os.ExpandEnv(svc.EnvFromFile)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Clean(filepath.Join(svc.Workdir, expanded))
		}
		svc.EnvFromFile = expanded

		fileEnv, err = loadEnvFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", serviceField("envFromFile"), err)
		}
	}
	svc.Env = mergeEnv(fileEnv, inlineEnv)

	if err := resolveStatePaths(svc); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

// StateDir resolves the directory warden uses for pid files and logs when the
// manifest does not name explicit paths. WARDEN_STATE_DIR overrides the
// default of ~/.warden.
func StateDir() (string, error) {
	if dir := os.Getenv("WARDEN_STATE_DIR"); dir != "" {
		return filepath.Clean(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(home, ".warden"), nil
}

func resolveStatePaths(svc *Service) error {
	var stateDir string
	ensureStateDir := func() error {
		if stateDir != "" {
			return nil
		}
		dir, err := StateDir()
		if err != nil {
			return err
		}
		stateDir = dir
		return nil
	}

	switch {
	case svc.PidFile == "":
		if err := ensureStateDir(); err != nil {
			return err
		}
		svc.PidFile = filepath.Join(stateDir, svc.Name+".pid")
	case !filepath.IsAbs(svc.PidFile):
		svc.PidFile = filepath.Clean(filepath.Join(svc.Workdir, svc.PidFile))
	}

	switch {
	case svc.LogFile == "":
		if err := ensureStateDir(); err != nil {
			return err
		}
		svc.LogFile = filepath.Join(stateDir, svc.Name+".log")
	case !filepath.IsAbs(svc.LogFile):
		svc.LogFile = filepath.Clean(filepath.Join(svc.Workdir, svc.LogFile))
	}
	return nil
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

func mergeEnv(fileEnv, inlineEnv map[string]string) map[string]string {
	if len(fileEnv) == 0 && len(inlineEnv) == 0 {
		return nil
	}
	merged := make(map[string]string, len(fileEnv)+len(inlineEnv))
	for k, v := range fileEnv {
		merged[k] = v
	}
	for k, v := range inlineEnv {
		merged[k] = v
	}
	return merged
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "export ") {
			raw = strings.TrimSpace(raw[len("export "):])
		}
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("load env file %q: invalid key on line %d", path, lineNo)
		}
		value := strings.TrimSpace(raw[sep+1:])
		if strings.HasPrefix(value, "\"") {
			if len(value) < 2 || value[len(value)-1] != '"' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		} else if strings.HasPrefix(value, "'") {
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		} else if comment := strings.IndexRune(value, '#'); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
