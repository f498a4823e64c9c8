package history

import "strings"

// DiffLine represents a single line in a diff
type DiffLine struct {
	Type    string `json:"type"` // "added", "removed", "unchanged"
	Content string `json:"content"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// Diff compares two snapshots line by line using the longest common
// subsequence.
func Diff(oldContent, newContent string) []DiffLine {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	return backtrack(oldLines, newLines, lcsMatrix(oldLines, newLines))
}

func lcsMatrix(a, b []string) [][]int {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}
	return dp
}

// Walks the matrix from the end, so lines come out reversed.
func backtrack(oldLines, newLines []string, lcs [][]int) []DiffLine {
	i, j := len(oldLines), len(newLines)
	reversed := make([]DiffLine, 0, max(i, j))

	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldLines[i-1] == newLines[j-1]:
			reversed = append(reversed, DiffLine{Type: "unchanged", Content: oldLines[i-1], OldLine: i, NewLine: j})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			reversed = append(reversed, DiffLine{Type: "added", Content: newLines[j-1], NewLine: j})
			j--
		default:
			reversed = append(reversed, DiffLine{Type: "removed", Content: oldLines[i-1], OldLine: i})
			i--
		}
	}

	diff := make([]DiffLine, len(reversed))
	for k, line := range reversed {
		diff[len(reversed)-1-k] = line
	}
	return diff
}
