package muzzle

import (
	"fmt"
	"slices"

	"github.com/daimatz/gomuzzle/pkg/classfile"
)

// Flag is a modifier requirement on a class, field or method. Each flag is a
// predicate over class file access bits rather than a bit itself: visibility
// flags come in exact and minimum-level variants, and the NON_* flags
// require a bit to be absent.
type Flag int

const (
	// Exact visibility.
	FlagPublic Flag = iota
	FlagProtected
	FlagPackage
	FlagPrivate

	// Minimum access level required by a call or field access.
	FlagProtectedOrHigher
	FlagPackageOrHigher
	FlagPrivateOrHigher

	// Manifestation.
	FlagFinal
	FlagNonFinal
	FlagAbstract

	// Ownership.
	FlagStatic
	FlagNonStatic

	// Type.
	FlagInterface
	FlagNonInterface
)

var flagNames = [...]string{
	FlagPublic:            "PUBLIC",
	FlagProtected:         "PROTECTED",
	FlagPackage:           "PACKAGE",
	FlagPrivate:           "PRIVATE",
	FlagProtectedOrHigher: "PROTECTED_OR_HIGHER",
	FlagPackageOrHigher:   "PACKAGE_OR_HIGHER",
	FlagPrivateOrHigher:   "PRIVATE_OR_HIGHER",
	FlagFinal:             "FINAL",
	FlagNonFinal:          "NON_FINAL",
	FlagAbstract:          "ABSTRACT",
	FlagStatic:            "STATIC",
	FlagNonStatic:         "NON_STATIC",
	FlagInterface:         "INTERFACE",
	FlagNonInterface:      "NON_INTERFACE",
}

func (f Flag) String() string {
	if f >= 0 && int(f) < len(flagNames) {
		return flagNames[f]
	}
	return fmt.Sprintf("Flag(%d)", int(f))
}

// ParseFlag returns the flag with the given name (as printed by String).
func ParseFlag(name string) (Flag, error) {
	for i, n := range flagNames {
		if n == name {
			return Flag(i), nil
		}
	}
	return 0, fmt.Errorf("unknown flag %q", name)
}

// Matches reports whether the access bits satisfy the flag.
func (f Flag) Matches(access int) bool {
	switch f {
	case FlagPublic:
		return access&classfile.AccPublic != 0
	case FlagProtected:
		return access&classfile.AccProtected != 0
	case FlagPackage:
		return !(FlagPublic.Matches(access) || FlagProtected.Matches(access) || FlagPrivate.Matches(access))
	case FlagPrivate:
		return access&classfile.AccPrivate != 0
	case FlagProtectedOrHigher:
		return FlagPublic.Matches(access) || FlagProtected.Matches(access)
	case FlagPackageOrHigher:
		return FlagPublic.Matches(access) || FlagProtected.Matches(access) || FlagPackage.Matches(access)
	case FlagPrivateOrHigher:
		// nothing is more private than private
		return true
	case FlagFinal:
		return access&classfile.AccFinal != 0
	case FlagNonFinal:
		return access&(classfile.AccAbstract|classfile.AccFinal) == 0
	case FlagAbstract:
		return access&classfile.AccAbstract != 0
	case FlagStatic:
		return access&classfile.AccStatic != 0
	case FlagNonStatic:
		return access&classfile.AccStatic == 0
	case FlagInterface:
		return access&classfile.AccInterface != 0
	case FlagNonInterface:
		return access&classfile.AccInterface == 0
	}
	return false
}

func hasFlag(flags []Flag, f Flag) bool {
	return slices.Contains(flags, f)
}

// addFlags appends the flags not already present.
func addFlags(dst []Flag, flags ...Flag) []Flag {
	for _, f := range flags {
		if !hasFlag(dst, f) {
			dst = append(dst, f)
		}
	}
	return dst
}
