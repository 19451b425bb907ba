// SPDX-License-Identifier: MIT
package build

import "testing"

func TestFlags(t *testing.T) {
	tests := []struct {
		name    string
		ldName  string
		ldTime  string
		commit  string
		version string
		want    ldFlags
	}{
		{
			"Dev build placeholders",
			"", "", "", "",
			ldFlags{Name: "sndsync", Time: "unknown", Commit: "unknown", Version: "dev"},
		},
		{
			"Release build",
			"sndsync", "2025-04-13", "abcdef123", "v1.0.0",
			ldFlags{Name: "sndsync", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
		{
			"Partial flags",
			"sndsync", "", "abcdef123", "",
			ldFlags{Name: "sndsync", Time: "unknown", Commit: "abcdef123", Version: "dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func(n, tm, c, v string) {
				buildName, buildTime, buildCommit, buildVersion = n, tm, c, v
			}(buildName, buildTime, buildCommit, buildVersion)

			buildName = tt.ldName
			buildTime = tt.ldTime
			buildCommit = tt.commit
			buildVersion = tt.version

			got := Flags()
			if *got != tt.want {
				t.Errorf("Flags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
