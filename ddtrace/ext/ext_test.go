// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-2020 Datadog, Inc.

package ext

import "testing"

// TestSpec asserts that the constants represented in this package match the
// ones that are expected by the rest of our pipeline.
func TestSpec(t *testing.T) {
	// tests holds pairs of tests where each i == i+1
	//
	// changing any of these should be considered a breaking change and
	// should require a major version release.
	tests := []string{
		Environment, "env",
		EventSampleRate, "_dd1.sr.eausr",
		ManualKeep, "manual.keep",
		ManualDrop, "manual.drop",
		SpanName, "span.name",
		ServiceName, "service.name",
		ResourceName, "resource.name",
		SpanType, "span.type",
	}
	if len(tests)%2 != 0 {
		t.Fatal("uneven test count")
	}
	for i := 0; i < len(tests); i += 2 {
		if tests[i] != tests[i+1] {
			t.Fatalf("changed %q", tests[i+1])
		}
	}
}

func TestPriorities(t *testing.T) {
	for p, want := range map[int]int{
		PriorityUserReject: -1,
		PriorityAutoReject: 0,
		PriorityAutoKeep:   1,
		PriorityUserKeep:   2,
	} {
		if p != want {
			t.Fatalf("sampling priority %d changed", want)
		}
	}
}
