package resilience

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestErrorCodeDerivation(t *testing.T) {
	ts := time.UnixMilli(1_700_000_123_456)
	enh := Enhance(errBoom, ErrorContext{
		Category:  CategoryNetwork,
		Severity:  SeverityHigh,
		Component: "lifecycle",
		Operation: "archive_session",
	}, ts)

	wantSuffix := strconv.FormatInt(ts.UnixMilli(), 36)
	if !strings.HasPrefix(enh.Code, "NETLIF") {
		t.Errorf("expected code prefix NETLIF, got %s", enh.Code)
	}
	if !strings.HasSuffix(enh.Code, wantSuffix) {
		t.Errorf("expected base36 timestamp suffix %s, got %s", wantSuffix, enh.Code)
	}
}

func TestErrorCodeShortComponent(t *testing.T) {
	enh := Enhance(errBoom, ErrorContext{
		Category:  CategorySystem,
		Component: "db",
	}, time.UnixMilli(1))

	if !strings.HasPrefix(enh.Code, "SYSDB") {
		t.Errorf("expected short component kept whole, got %s", enh.Code)
	}
}

func TestEnhancePreservesInnermostContext(t *testing.T) {
	inner := Enhance(errBoom, ErrorContext{
		Category:  CategorySession,
		Severity:  SeverityHigh,
		Component: "lifecycle",
		Operation: "expire_session",
	}, time.UnixMilli(1))

	outer := Enhance(inner, ErrorContext{
		Category:  CategorySystem,
		Severity:  SeverityLow,
		Component: "scheduler",
		Operation: "tick",
	}, time.UnixMilli(2))

	if outer != inner {
		t.Error("expected already-enhanced error to pass through unchanged")
	}
	if outer.Component != "lifecycle" {
		t.Errorf("expected innermost component, got %s", outer.Component)
	}
}

func TestEnhancedErrorUnwraps(t *testing.T) {
	enh := Enhance(errBoom, ErrorContext{
		Category:  CategoryNetwork,
		Severity:  SeverityMedium,
		Component: "store",
		Operation: "load",
	}, time.UnixMilli(1))

	if !errors.Is(enh, errBoom) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}
	if !strings.Contains(enh.Error(), "store.load") {
		t.Errorf("expected component.operation in message, got %s", enh.Error())
	}
}
