package importrewrite

import (
	"strings"
	"testing"
)

func TestRewriteDefaultAndNamedWithAlias(t *testing.T) {
	src := `import React, { useState as S } from 'react';`
	out := Rewrite(src)

	if !strings.Contains(out, "const React = __PYXIS_REACT__;") {
		t.Errorf("missing default binding in %q", out)
	}
	if !strings.Contains(out, "const { useState: S } = __PYXIS_REACT__;") {
		t.Errorf("missing aliased named binding in %q", out)
	}
}

func TestRewriteIdempotent(t *testing.T) {
	src := `import React, { useState as S } from 'react';`
	once := Rewrite(src)
	twice := Rewrite(once)
	if once != twice {
		t.Errorf("rewrite is not idempotent:\nonce:  %s\ntwice: %s", once, twice)
	}
}

func TestRewriteDefaultOnly(t *testing.T) {
	out := Rewrite(`import React from 'react';`)
	if strings.TrimSpace(out) != "const React = __PYXIS_REACT__;" {
		t.Errorf("got %q", out)
	}
}

func TestRewriteNamespace(t *testing.T) {
	out := Rewrite(`import * as MD from 'react-markdown';`)
	if strings.TrimSpace(out) != "const MD = __PYXIS_MARKDOWN__;" {
		t.Errorf("got %q", out)
	}
}

func TestRewriteNamedOnly(t *testing.T) {
	out := Rewrite(`import { useState, useEffect as E } from 'react';`)
	if !strings.Contains(out, "const { useState, useEffect: E } = __PYXIS_REACT__;") {
		t.Errorf("got %q", out)
	}
}

func TestRewriteLeavesNonAllowListedModulesUntouched(t *testing.T) {
	src := `import something from 'not-on-the-allow-list';`
	if out := Rewrite(src); out != src {
		t.Errorf("expected untouched import, got %q", out)
	}
}
