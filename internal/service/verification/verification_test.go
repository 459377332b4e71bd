package verification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdgrade/similarity-service/internal/models"
	"github.com/swdgrade/similarity-service/internal/repository"
)

type fakeResultRepo struct {
	mu      sync.Mutex
	results map[string]*models.SimilarityResult
}

func newFakeResultRepo(results ...*models.SimilarityResult) *fakeResultRepo {
	repo := &fakeResultRepo{results: make(map[string]*models.SimilarityResult)}
	for _, result := range results {
		repo.results[result.ID] = result
	}
	return repo
}

func (f *fakeResultRepo) CreateCheck(ctx context.Context, check *models.SimilarityCheck) error {
	return nil
}

func (f *fakeResultRepo) CreateResult(ctx context.Context, result *models.SimilarityResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *result
	f.results[result.ID] = &clone
	return nil
}

func (f *fakeResultRepo) GetResultByID(ctx context.Context, id string) (*models.SimilarityResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *result
	return &clone, nil
}

func (f *fakeResultRepo) GetResultsByCheck(ctx context.Context, checkID string) ([]models.SimilarityResult, error) {
	return nil, nil
}

func (f *fakeResultRepo) UpdateAIVerification(ctx context.Context, id string, status models.VerificationStatus, payload []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[id]
	if !ok || result.VerificationStatus != models.VerificationPending {
		return repository.ErrNotFound
	}
	result.VerificationStatus = status
	result.AIResult = payload
	result.AIVerifiedAt = &at
	return nil
}

func (f *fakeResultRepo) UpdateTeacherVerification(ctx context.Context, id string, status models.VerificationStatus, teacherID string, notes *string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[id]
	if !ok {
		return repository.ErrNotFound
	}
	result.VerificationStatus = status
	result.TeacherID = &teacherID
	result.TeacherNotes = notes
	result.TeacherVerifiedAt = &at
	return nil
}

func (f *fakeResultRepo) Ping(ctx context.Context) error { return nil }

type fakeDocumentRepo struct {
	docs map[string]*models.Document
}

func (f *fakeDocumentRepo) Create(ctx context.Context, doc *models.Document) error { return nil }

func (f *fakeDocumentRepo) GetByID(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocumentRepo) GetByBatchID(ctx context.Context, batchID string) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDocumentRepo) GetParsedByExam(ctx context.Context, examID string) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDocumentRepo) GetUnembedded(ctx context.Context, limit int) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDocumentRepo) MarkEmbedded(ctx context.Context, id string) error { return nil }

func (f *fakeDocumentRepo) Ping(ctx context.Context) error { return nil }

type fakeLookupRepo struct {
	users map[string]models.User
}

func (f *fakeLookupRepo) GetExam(ctx context.Context, id string) (*models.Exam, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeLookupRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (f *fakeLookupRepo) Ping(ctx context.Context) error { return nil }

type fakeAdjudicator struct {
	judgment   *models.AIJudgment
	err        error
	calls      int
	lastLabels [2]string
}

func (f *fakeAdjudicator) Judge(ctx context.Context, text1, text2, label1, label2 string, score float64) (*models.AIJudgment, error) {
	f.calls++
	f.lastLabels = [2]string{label1, label2}
	if f.err != nil {
		return nil, f.err
	}
	return f.judgment, nil
}

const (
	resultID  = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	teacherID = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

func textPtr(s string) *string { return &s }

func pendingResult() *models.SimilarityResult {
	return &models.SimilarityResult{
		ID:                 resultID,
		CheckID:            "check-1",
		Doc1ID:             "doc-1",
		Doc2ID:             "doc-2",
		Score:              0.91,
		Owner1Code:         "ab123",
		Owner2Code:         "cd456",
		VerificationStatus: models.VerificationPending,
	}
}

func newVerificationService(results *fakeResultRepo, adjudicator Adjudicator) *Service {
	docs := &fakeDocumentRepo{docs: map[string]*models.Document{
		"doc-1": {ID: "doc-1", ParsedText: textPtr("first answer"), ParseStatus: models.ParseStatusOK},
		"doc-2": {ID: "doc-2", ParsedText: textPtr("second answer"), ParseStatus: models.ParseStatusOK},
	}}
	lookups := &fakeLookupRepo{users: map[string]models.User{
		teacherID: {ID: teacherID, Username: "prof"},
	}}
	return NewService(results, docs, lookups, adjudicator, zerolog.Nop())
}

func TestAIVerifySimilarVerdict(t *testing.T) {
	results := newFakeResultRepo(pendingResult())
	adjudicator := &fakeAdjudicator{judgment: &models.AIJudgment{
		IsSimilar:  true,
		Confidence: 0.95,
		Summary:    "near verbatim copy",
	}}
	service := newVerificationService(results, adjudicator)

	out, err := service.AIVerify(context.Background(), resultID)
	require.NoError(t, err)

	assert.Equal(t, models.VerificationAISimilar, out.VerificationStatus)
	require.NotNil(t, out.AIVerdict)
	assert.True(t, out.AIVerdict.IsSimilar)
	assert.InDelta(t, 0.95, out.AIVerdict.Confidence, 1e-9)
	assert.NotNil(t, out.AIVerifiedAt)
	assert.Equal(t, 1, adjudicator.calls)
	assert.Equal(t, [2]string{"ab123", "cd456"}, adjudicator.lastLabels)
}

func TestAIVerifyNotSimilarVerdict(t *testing.T) {
	results := newFakeResultRepo(pendingResult())
	adjudicator := &fakeAdjudicator{judgment: &models.AIJudgment{IsSimilar: false, Confidence: 0.7}}
	service := newVerificationService(results, adjudicator)

	out, err := service.AIVerify(context.Background(), resultID)
	require.NoError(t, err)

	assert.Equal(t, models.VerificationAINotSimilar, out.VerificationStatus)
}

func TestAIVerifyRejectsNonPendingResult(t *testing.T) {
	verified := pendingResult()
	verified.VerificationStatus = models.VerificationAISimilar

	results := newFakeResultRepo(verified)
	adjudicator := &fakeAdjudicator{judgment: &models.AIJudgment{IsSimilar: true}}
	service := newVerificationService(results, adjudicator)

	_, err := service.AIVerify(context.Background(), resultID)

	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Zero(t, adjudicator.calls)
}

func TestAIVerifyRejectsUnparsedDocument(t *testing.T) {
	results := newFakeResultRepo(pendingResult())
	adjudicator := &fakeAdjudicator{judgment: &models.AIJudgment{IsSimilar: true}}
	docs := &fakeDocumentRepo{docs: map[string]*models.Document{
		"doc-1": {ID: "doc-1", ParsedText: textPtr("first answer"), ParseStatus: models.ParseStatusOK},
		"doc-2": {ID: "doc-2", ParseStatus: models.ParseStatusError},
	}}
	lookups := &fakeLookupRepo{users: map[string]models.User{}}
	service := NewService(results, docs, lookups, adjudicator, zerolog.Nop())

	_, err := service.AIVerify(context.Background(), resultID)

	assert.ErrorIs(t, err, ErrDocumentNotParsed)
	assert.Zero(t, adjudicator.calls)

	stored, getErr := results.GetResultByID(context.Background(), resultID)
	require.NoError(t, getErr)
	assert.Equal(t, models.VerificationPending, stored.VerificationStatus)
}

func TestAIVerifyUnknownResult(t *testing.T) {
	service := newVerificationService(newFakeResultRepo(), &fakeAdjudicator{})

	_, err := service.AIVerify(context.Background(), resultID)

	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestAIVerifyPropagatesAdjudicatorFailure(t *testing.T) {
	results := newFakeResultRepo(pendingResult())
	adjudicator := &fakeAdjudicator{err: ErrAdjudicatorUnavailable}
	service := newVerificationService(results, adjudicator)

	_, err := service.AIVerify(context.Background(), resultID)

	assert.ErrorIs(t, err, ErrAdjudicatorUnavailable)

	// A failed adjudication leaves the pair Pending for a retry.
	stored, getErr := results.GetResultByID(context.Background(), resultID)
	require.NoError(t, getErr)
	assert.Equal(t, models.VerificationPending, stored.VerificationStatus)
}

func TestTeacherVerifyFromPending(t *testing.T) {
	results := newFakeResultRepo(pendingResult())
	service := newVerificationService(results, &fakeAdjudicator{})

	notes := "discussed with both students"
	out, err := service.TeacherVerify(context.Background(), resultID, teacherID, true, &notes)
	require.NoError(t, err)

	assert.Equal(t, models.VerificationTeacherSimilar, out.VerificationStatus)
	require.NotNil(t, out.TeacherVerdict)
	assert.True(t, *out.TeacherVerdict)
	assert.Equal(t, &notes, out.TeacherNotes)
	assert.NotNil(t, out.TeacherVerifiedAt)
}

func TestTeacherVerifyOverridesAIVerdict(t *testing.T) {
	verified := pendingResult()
	verified.VerificationStatus = models.VerificationAISimilar
	verified.AIResult, _ = json.Marshal(models.AIJudgment{IsSimilar: true, Confidence: 0.9})

	results := newFakeResultRepo(verified)
	service := newVerificationService(results, &fakeAdjudicator{})

	out, err := service.TeacherVerify(context.Background(), resultID, teacherID, false, nil)
	require.NoError(t, err)

	assert.Equal(t, models.VerificationTeacherNotSimilar, out.VerificationStatus)
	require.NotNil(t, out.TeacherVerdict)
	assert.False(t, *out.TeacherVerdict)

	// The earlier AI verdict stays on record.
	require.NotNil(t, out.AIVerdict)
	assert.True(t, out.AIVerdict.IsSimilar)
}

func TestTeacherVerifyUnknownTeacher(t *testing.T) {
	results := newFakeResultRepo(pendingResult())
	service := newVerificationService(results, &fakeAdjudicator{})

	_, err := service.TeacherVerify(context.Background(), resultID, "cccccccc-cccc-cccc-cccc-cccccccccccc", true, nil)

	assert.ErrorIs(t, err, ErrTeacherNotFound)
}

func TestTeacherVerifyUnknownResult(t *testing.T) {
	service := newVerificationService(newFakeResultRepo(), &fakeAdjudicator{})

	_, err := service.TeacherVerify(context.Background(), resultID, teacherID, true, nil)

	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestParseJudgmentStrictJSON(t *testing.T) {
	judgment := parseJudgment(`{"is_similar": true, "confidence_score": 0.87, "summary": "copied", "analysis": "same structure"}`)

	assert.True(t, judgment.IsSimilar)
	assert.InDelta(t, 0.87, judgment.Confidence, 1e-9)
	assert.Equal(t, "copied", judgment.Summary)
}

func TestParseJudgmentJSONInsideProse(t *testing.T) {
	judgment := parseJudgment("Here is my assessment:\n```json\n{\"is_similar\": false, \"confidence_score\": 0.6, \"summary\": \"independent work\"}\n```\nLet me know if you need more.")

	assert.False(t, judgment.IsSimilar)
	assert.InDelta(t, 0.6, judgment.Confidence, 1e-9)
}

func TestParseJudgmentFallbackOnUnstructuredReply(t *testing.T) {
	judgment := parseJudgment("The second answer is clearly plagiarized from the first one.")

	assert.True(t, judgment.IsSimilar)
	assert.InDelta(t, 0.5, judgment.Confidence, 1e-9)
	assert.NotEmpty(t, judgment.Analysis)
}

func TestParseJudgmentFallbackNegative(t *testing.T) {
	judgment := parseJudgment("These answers appear to be independent work with coincidental overlap.")

	assert.False(t, judgment.IsSimilar)
	assert.InDelta(t, 0.5, judgment.Confidence, 1e-9)
}
