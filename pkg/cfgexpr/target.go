package cfgexpr

import (
	"slices"
	"strings"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

// Target holds the cfg values of one target triple.
type Target struct {
	Triple       string
	Arch         string
	Vendor       string
	OS           string
	Env          string
	Abi          string
	Families     []string
	Endian       string
	PointerWidth string
}

var knownVendors = []string{"unknown", "pc", "apple", "fortanix", "nvidia", "sun", "uwp", "wrs", "esp", "kmc", "nintendo", "sony", "win7", "openwrt"}

var unixOS = []string{
	"linux", "android", "macos", "ios", "tvos", "watchos", "visionos",
	"freebsd", "netbsd", "openbsd", "dragonfly", "solaris", "illumos",
	"haiku", "fuchsia", "redox", "aix", "hurd", "nto", "vxworks", "l4re", "emscripten",
}

var envPrefixes = []string{"gnu", "musl", "msvc", "uclibc", "newlib", "sgx", "ohos", "relibc"}

// ParseTriple derives cfg values from a target triple such as
// "x86_64-unknown-linux-gnu" or "aarch64-apple-darwin".
func ParseTriple(triple string) (*Target, error) {
	parts := strings.Split(strings.TrimSpace(triple), "-")
	if len(parts) < 2 || slices.Contains(parts, "") {
		return nil, perrors.New(perrors.ErrCodeInvalidPlatform, "invalid target triple %q", triple)
	}

	t := &Target{Triple: triple, Vendor: "unknown"}
	rawArch := parts[0]
	rest := parts[1:]
	if len(rest) >= 2 && slices.Contains(knownVendors, rest[0]) {
		t.Vendor = rest[0]
		rest = rest[1:]
	}

	t.OS = rest[0]
	if len(rest) > 1 {
		envAbi := strings.Join(rest[1:], "-")
		for _, p := range envPrefixes {
			if strings.HasPrefix(envAbi, p) {
				t.Env = p
				t.Abi = strings.TrimPrefix(envAbi, p)
				break
			}
		}
		if t.Env == "" {
			t.Abi = envAbi
		}
		if rest[1] == "android" || rest[1] == "androideabi" {
			t.OS = "android"
			t.Env = ""
			t.Abi = strings.TrimPrefix(rest[1], "android")
		}
	}
	switch {
	case t.OS == "darwin":
		t.OS = "macos"
	case strings.HasPrefix(t.OS, "wasi"):
		t.Env = strings.TrimPrefix(t.OS, "wasi")
		t.OS = "wasi"
	}

	t.Arch, t.Endian, t.PointerWidth = arch(rawArch)
	if t.Env == "gnu" && t.Abi == "x32" {
		t.PointerWidth = "32"
	}

	switch {
	case slices.Contains(unixOS, t.OS):
		t.Families = append(t.Families, "unix")
	case t.OS == "windows":
		t.Families = append(t.Families, "windows")
	}
	if t.Arch == "wasm32" || t.Arch == "wasm64" {
		t.Families = append(t.Families, "wasm")
	}
	return t, nil
}

func arch(raw string) (name, endian, width string) {
	endian, width = "little", "32"
	switch {
	case raw == "x86_64" || raw == "x86_64h":
		return "x86_64", endian, "64"
	case raw == "i386" || raw == "i586" || raw == "i686":
		return "x86", endian, width
	case raw == "aarch64" || raw == "arm64" || raw == "arm64e":
		return "aarch64", endian, "64"
	case raw == "aarch64_be":
		return "aarch64", "big", "64"
	case raw == "armeb" || raw == "armebv7r":
		return "arm", "big", width
	case strings.HasPrefix(raw, "arm") || strings.HasPrefix(raw, "thumb"):
		return "arm", endian, width
	case strings.HasPrefix(raw, "riscv64"):
		return "riscv64", endian, "64"
	case strings.HasPrefix(raw, "riscv32"):
		return "riscv32", endian, width
	case raw == "powerpc64le":
		return "powerpc64", endian, "64"
	case raw == "powerpc64":
		return "powerpc64", "big", "64"
	case raw == "powerpc":
		return "powerpc", "big", width
	case raw == "s390x":
		return "s390x", "big", "64"
	case raw == "mips64el" || raw == "mipsisa64r6el":
		return "mips64", endian, "64"
	case raw == "mips64" || raw == "mipsisa64r6":
		return "mips64", "big", "64"
	case raw == "mipsel" || raw == "mipsisa32r6el":
		return "mips", endian, width
	case raw == "mips" || raw == "mipsisa32r6":
		return "mips", "big", width
	case raw == "sparc64" || raw == "sparcv9":
		return "sparc64", "big", "64"
	case raw == "sparc":
		return "sparc", "big", width
	case raw == "loongarch64":
		return "loongarch64", endian, "64"
	case raw == "wasm64":
		return "wasm64", endian, "64"
	case raw == "avr" || raw == "msp430":
		return raw, endian, "16"
	default:
		return raw, endian, width
	}
}

// HasFamily reports whether family is one of the target's families.
func (t *Target) HasFamily(family string) bool {
	return slices.Contains(t.Families, family)
}

// lookup evaluates key = value. ok is false for keys the target does not
// describe.
func (t *Target) lookup(key, value string) (match, ok bool) {
	switch key {
	case "target_os":
		return t.OS == value, true
	case "target_family":
		return t.HasFamily(value), true
	case "target_arch":
		return t.Arch == value, true
	case "target_env":
		return t.Env == value, true
	case "target_vendor":
		return t.Vendor == value, true
	case "target_endian":
		return t.Endian == value, true
	case "target_pointer_width":
		return t.PointerWidth == value, true
	case "target_abi":
		return t.Abi == value, true
	default:
		return false, false
	}
}
