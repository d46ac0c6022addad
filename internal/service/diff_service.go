package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/damoang/angple-workflow/internal/common"
	"github.com/damoang/angple-workflow/internal/domain"
	"github.com/damoang/angple-workflow/internal/repository"
	"github.com/damoang/angple-workflow/pkg/cache"
)

// ChangeKind classifies one line-level change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change is one line-level difference between two version bodies. Line
// numbers are 1-based; FromLine is 0 for added lines, ToLine is 0 for removed
// lines.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	FromLine int        `json:"from_line,omitempty"`
	ToLine   int        `json:"to_line,omitempty"`
	FromText string     `json:"from_text,omitempty"`
	ToText   string     `json:"to_text,omitempty"`
}

// DiffResult is the comparison of two versions of the same content.
type DiffResult struct {
	FromVersionID uint64   `json:"from_version_id"`
	ToVersionID   uint64   `json:"to_version_id"`
	TitleChanged  bool     `json:"title_changed"`
	Changes       []Change `json:"changes"`
	Added         int      `json:"added"`
	Removed       int      `json:"removed"`
	Modified      int      `json:"modified"`
}

// ObjectStore is the subset of the S3 client the exporter needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// DiffService compares versions and exports the result. Results are memoized
// in Redis and the database since version bodies are immutable.
type DiffService interface {
	Compare(ctx context.Context, fromID, toID uint64) (*DiffResult, error)
	// ExportCSV uploads the comparison as a CSV object and returns its URL.
	ExportCSV(ctx context.Context, fromID, toID uint64) (string, error)
	// ExportJSON uploads the comparison as a JSON object and returns its URL.
	ExportJSON(ctx context.Context, fromID, toID uint64) (string, error)
}

type diffService struct {
	versions repository.VersionRepository
	diffs    repository.DiffRepository
	cache    cache.Service
	store    ObjectStore
}

// NewDiffService creates a new DiffService. cache and store may be nil; the
// service then computes on demand and refuses exports.
func NewDiffService(versions repository.VersionRepository, diffs repository.DiffRepository, cacheSvc cache.Service, store ObjectStore) DiffService {
	return &diffService{versions: versions, diffs: diffs, cache: cacheSvc, store: store}
}

func (s *diffService) Compare(ctx context.Context, fromID, toID uint64) (*DiffResult, error) {
	if s.cache != nil {
		var cached DiffResult
		if err := s.cache.GetDiff(ctx, fromID, toID, &cached); err == nil {
			return &cached, nil
		}
	}

	if row, err := s.diffs.FindByPair(fromID, toID); err == nil {
		var result DiffResult
		if err := json.Unmarshal([]byte(row.Payload), &result); err == nil {
			if s.cache != nil {
				_ = s.cache.SetDiff(ctx, fromID, toID, &result)
			}
			return &result, nil
		}
	}

	from, err := s.versions.FindByID(fromID)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", fromID, err)
	}
	to, err := s.versions.FindByID(toID)
	if err != nil {
		return nil, fmt.Errorf("version %d: %w", toID, err)
	}
	if from.ContentID != to.ContentID {
		return nil, fmt.Errorf("versions %d and %d belong to different contents: %w",
			fromID, toID, common.ErrValidation)
	}

	result := compareBodies(from.Body, to.Body)
	result.FromVersionID = fromID
	result.ToVersionID = toID
	result.TitleChanged = from.Title != to.Title

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	// Best effort; a concurrent compute of the same pair loses the unique
	// index race and that is fine, the payload is identical.
	_ = s.diffs.Create(&domain.VersionDiff{
		FromVersionID: fromID,
		ToVersionID:   toID,
		Payload:       string(payload),
		Added:         result.Added,
		Removed:       result.Removed,
		Modified:      result.Modified,
	})
	if s.cache != nil {
		_ = s.cache.SetDiff(ctx, fromID, toID, result)
	}
	return result, nil
}

func (s *diffService) ExportCSV(ctx context.Context, fromID, toID uint64) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("no object storage configured: %w", common.ErrValidation)
	}
	result, err := s.Compare(ctx, fromID, toID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"kind", "from_line", "to_line", "from_text", "to_text"})
	for _, c := range result.Changes {
		_ = w.Write([]string{
			string(c.Kind),
			strconv.Itoa(c.FromLine),
			strconv.Itoa(c.ToLine),
			c.FromText,
			c.ToText,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := exportKey(fromID, toID, "csv")
	return s.store.Put(ctx, key, buf.Bytes(), "text/csv")
}

func (s *diffService) ExportJSON(ctx context.Context, fromID, toID uint64) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("no object storage configured: %w", common.ErrValidation)
	}
	result, err := s.Compare(ctx, fromID, toID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	key := exportKey(fromID, toID, "json")
	return s.store.Put(ctx, key, data, "application/json")
}

func exportKey(fromID, toID uint64, ext string) string {
	return fmt.Sprintf("diffs/%d-%d-%s.%s", fromID, toID, uuid.NewString(), ext)
}

// compareBodies runs a line-level LCS diff. Within each non-matching region,
// removed and added lines pair up positionally into modified lines; the
// leftovers count as pure removals or additions. Swapping the inputs swaps
// added with removed and keeps modified identical.
func compareBodies(fromBody, toBody string) *DiffResult {
	a := splitLines(fromBody)
	b := splitLines(toBody)

	result := &DiffResult{Changes: []Change{}}

	matches := lcsPairs(a, b)
	// Sentinel match past both ends closes the final region.
	matches = append(matches, [2]int{len(a), len(b)})

	ai, bi := 0, 0
	for _, m := range matches {
		removed := a[ai:m[0]]
		added := b[bi:m[1]]

		paired := len(removed)
		if len(added) < paired {
			paired = len(added)
		}
		for i := 0; i < paired; i++ {
			result.Changes = append(result.Changes, Change{
				Kind:     ChangeModified,
				FromLine: ai + i + 1,
				ToLine:   bi + i + 1,
				FromText: removed[i],
				ToText:   added[i],
			})
		}
		for i := paired; i < len(removed); i++ {
			result.Changes = append(result.Changes, Change{
				Kind:     ChangeRemoved,
				FromLine: ai + i + 1,
				FromText: removed[i],
			})
		}
		for i := paired; i < len(added); i++ {
			result.Changes = append(result.Changes, Change{
				Kind:   ChangeAdded,
				ToLine: bi + i + 1,
				ToText: added[i],
			})
		}
		result.Modified += paired
		result.Removed += len(removed) - paired
		result.Added += len(added) - paired

		ai = m[0] + 1
		bi = m[1] + 1
	}
	return result
}

// lcsPairs returns the aligned index pairs of a longest common subsequence of
// a and b, in increasing order.
func lcsPairs(a, b []string) [][2]int {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var pairs [][2]int
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
