package catalog

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/najdeno/internal/classify"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

func testPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{120, 80, 40, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test photo: %v", err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T) *store.ItemStore {
	t.Helper()
	st, err := store.New(db.NewTestDB(t), t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return st
}

func labelerFor(label string, confidence float64) Labeler {
	return classify.New(&classify.StaticDetector{
		Detections: []classify.Detection{{Label: label, Confidence: confidence}},
	})
}

// faultyStore wraps a real store and fails selected operations.
type faultyStore struct {
	*store.ItemStore
	saveBlobErr     error
	createRecordErr error
	updateRecordErr error
}

func (f *faultyStore) SaveBlob(ctx context.Context, name string, data []byte) error {
	if f.saveBlobErr != nil {
		return f.saveBlobErr
	}
	return f.ItemStore.SaveBlob(ctx, name, data)
}

func (f *faultyStore) CreateRecord(ctx context.Context, item *model.Item) error {
	if f.createRecordErr != nil {
		return f.createRecordErr
	}
	return f.ItemStore.CreateRecord(ctx, item)
}

func (f *faultyStore) UpdateRecord(ctx context.Context, item *model.Item) error {
	if f.updateRecordErr != nil {
		return f.updateRecordErr
	}
	return f.ItemStore.UpdateRecord(ctx, item)
}

// stuckLabeler never answers until its context ends.
type stuckLabeler struct{}

func (stuckLabeler) Start(ctx context.Context, _ []byte) <-chan classify.Result {
	ch := make(chan classify.Result, 1)
	go func() {
		<-ctx.Done()
		ch <- classify.Result{Err: ctx.Err()}
		close(ch)
	}()
	return ch
}

// fixedLabeler suggests the same label for any bytes.
type fixedLabeler struct {
	label      string
	confidence float64
}

func (f fixedLabeler) Start(context.Context, []byte) <-chan classify.Result {
	ch := make(chan classify.Result, 1)
	ch <- classify.Result{Labeling: &classify.Labeling{Label: f.label, Confidence: f.confidence}}
	close(ch)
	return ch
}

// recordingLabeler passes results through and keeps the last error.
type recordingLabeler struct {
	inner Labeler

	mu  sync.Mutex
	err error
}

func (r *recordingLabeler) Start(ctx context.Context, image []byte) <-chan classify.Result {
	out := make(chan classify.Result, 1)
	go func() {
		defer close(out)
		res := <-r.inner.Start(ctx, image)
		r.mu.Lock()
		r.err = res.Err
		r.mu.Unlock()
		out <- res
	}()
	return out
}

func (r *recordingLabeler) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func countItems(t *testing.T, st *store.ItemStore) int {
	t.Helper()
	n, err := store.CountItems(context.Background(), st.DB)
	if err != nil {
		t.Fatalf("counting items: %v", err)
	}
	return n
}

func blobCount(t *testing.T, st *store.ItemStore) int {
	t.Helper()
	entries, err := os.ReadDir(st.Blobs.Dir)
	if err != nil {
		t.Fatalf("reading blob dir: %v", err)
	}
	return len(entries)
}

func TestAddItemPrefillsFromLabel(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, labelerFor("backpack", 0.92))
	ctx := context.Background()

	item, err := svc.AddItem(ctx, Draft{}, testPhoto(t))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if item.ItemName != "Backpack" {
		t.Errorf("expected name 'Backpack', got %q", item.ItemName)
	}
	if item.ItemDescription == "" || !strings.Contains(item.ItemDescription, "backpack") {
		t.Errorf("expected templated description, got %q", item.ItemDescription)
	}
	if item.IsClaimed || !item.ClaimConsistent() {
		t.Errorf("expected a consistent unclaimed item, got %+v", item)
	}
	if item.Category != model.DefaultCategory {
		t.Errorf("expected default category, got %q", item.Category)
	}
	if !strings.HasPrefix(item.ImageName, "item-") || !strings.HasSuffix(item.ImageName, ".jpg") {
		t.Errorf("unexpected image name %q", item.ImageName)
	}

	stored, err := svc.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if stored.ItemName != "Backpack" {
		t.Errorf("expected stored name 'Backpack', got %q", stored.ItemName)
	}

	photo, err := svc.ItemImage(ctx, item.ID)
	if err != nil {
		t.Fatalf("ItemImage: %v", err)
	}
	if len(photo) == 0 {
		t.Error("expected stored photo")
	}
}

func TestAddItemMultiWordLabel(t *testing.T) {
	svc := New(newTestStore(t), labelerFor("cell phone", 0.7))

	item, err := svc.AddItem(context.Background(), Draft{LocationFound: "Cafeteria"}, testPhoto(t))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ItemName != "Cell Phone" {
		t.Errorf("expected title-cased name, got %q", item.ItemName)
	}
	if item.ItemDescription != "An item, cell phone, was found in Cafeteria at exactly ___" {
		t.Errorf("unexpected description %q", item.ItemDescription)
	}
}

func TestAddItemKeepsUserInput(t *testing.T) {
	svc := New(newTestStore(t), labelerFor("handbag", 0.8))

	draft := Draft{ItemName: "Grandma's purse", ItemDescription: "Knitted, blue"}
	item, err := svc.AddItem(context.Background(), draft, testPhoto(t))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ItemName != "Grandma's purse" || item.ItemDescription != "Knitted, blue" {
		t.Errorf("user input was overwritten: %q / %q", item.ItemName, item.ItemDescription)
	}
}

func TestAddItemClassifierErrorKeepsDraft(t *testing.T) {
	tests := []struct {
		desc string
		err  error
	}{
		{"model unavailable", classify.ErrModelUnavailable},
		{"inference failed", classify.ErrInferenceFailed},
		{"decode failed", classify.ErrDecodeFailed},
	}

	for _, tt := range tests {
		st := newTestStore(t)
		svc := New(st, classify.New(&classify.StaticDetector{Err: tt.err}))

		item, err := svc.AddItem(context.Background(), Draft{LocationFound: "Gym"}, testPhoto(t))
		if err != nil {
			t.Fatalf("%s: AddItem should not fail: %v", tt.desc, err)
		}
		if item.ItemName != "" || item.ItemDescription != "" {
			t.Errorf("%s: expected empty name/description, got %q / %q", tt.desc, item.ItemName, item.ItemDescription)
		}
		if countItems(t, st) != 1 {
			t.Errorf("%s: expected item to be stored", tt.desc)
		}
	}
}

func TestAddItemNoDetections(t *testing.T) {
	svc := New(newTestStore(t), classify.New(&classify.StaticDetector{}))

	item, err := svc.AddItem(context.Background(), Draft{ItemName: "Scarf"}, testPhoto(t))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ItemName != "Scarf" || item.ItemDescription != "" {
		t.Errorf("expected draft untouched, got %q / %q", item.ItemName, item.ItemDescription)
	}
}

func TestAddItemWithoutImage(t *testing.T) {
	st := newTestStore(t)
	labeler := &classify.StaticDetector{Detections: []classify.Detection{{Label: "x", Confidence: 1}}}
	svc := New(st, classify.New(labeler))

	item, err := svc.AddItem(context.Background(), Draft{ItemName: "Umbrella", Category: "miscellaneous"}, nil)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ImageName != "" {
		t.Errorf("expected no image name, got %q", item.ImageName)
	}
	if item.Category != model.CategoryMiscellaneous {
		t.Errorf("expected Miscellaneous, got %q", item.Category)
	}
	if labeler.Calls() != 0 {
		t.Error("classifier should not run without a photo")
	}
	if _, err := svc.ItemImage(context.Background(), item.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing photo, got %v", err)
	}
}

func TestAddItemDefaultsDateFound(t *testing.T) {
	fixed := time.Date(2026, 3, 26, 10, 0, 0, 0, time.UTC)
	svc := New(newTestStore(t), nil, WithClock(func() time.Time { return fixed }))

	item, err := svc.AddItem(context.Background(), Draft{ItemName: "Keys"}, nil)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !item.DateFound.Equal(fixed) {
		t.Errorf("expected DateFound %v, got %v", fixed, item.DateFound)
	}
}

func TestAddItemInvalidCategory(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, nil)

	_, err := svc.AddItem(context.Background(), Draft{Category: "Furniture"}, nil)
	if !errors.Is(err, ErrInvalidItem) {
		t.Errorf("expected ErrInvalidItem, got %v", err)
	}
	if countItems(t, st) != 0 {
		t.Error("expected no record for invalid draft")
	}
}

func TestAddItemUnreadablePhoto(t *testing.T) {
	st := newTestStore(t)
	detector := &classify.StaticDetector{
		Detections: []classify.Detection{{Label: "wallet", Confidence: 0.9}},
	}
	labeler := &recordingLabeler{inner: classify.New(detector)}
	svc := New(st, labeler)
	ctx := context.Background()

	raw := []byte("GIF89a not really")
	item, err := svc.AddItem(ctx, Draft{ItemName: "Scarf"}, raw)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if item.ItemName != "Scarf" || item.ItemDescription != "" {
		t.Errorf("expected draft untouched, got %q / %q", item.ItemName, item.ItemDescription)
	}
	if !errors.Is(labeler.lastErr(), classify.ErrDecodeFailed) {
		t.Errorf("expected classifier to report ErrDecodeFailed, got %v", labeler.lastErr())
	}
	if detector.Calls() != 0 {
		t.Error("detector should not run on undecodable bytes")
	}
	if countItems(t, st) != 1 {
		t.Error("expected item to be stored")
	}

	photo, err := svc.ItemImage(ctx, item.ID)
	if err != nil {
		t.Fatalf("ItemImage: %v", err)
	}
	if !bytes.Equal(photo, raw) {
		t.Error("expected unreadable photo to be stored as uploaded")
	}
}

func TestWalletFixtureScenario(t *testing.T) {
	svc := New(newTestStore(t), fixedLabeler{label: "Wallet", confidence: 0.85})
	ctx := context.Background()

	item, err := svc.AddItem(ctx, Draft{Category: "Electronics", LocationFound: "Library"}, []byte("fixture-bytes"))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ItemName != "Wallet" || item.Category != model.CategoryElectronics || item.IsClaimed {
		t.Fatalf("unexpected new item: %+v", item)
	}
	if item.ItemDescription != "An item, Wallet, was found in Library at exactly ___" {
		t.Errorf("unexpected description %q", item.ItemDescription)
	}

	claimed, err := svc.ClaimItem(ctx, true, item, "Jane Doe")
	if err != nil {
		t.Fatalf("ClaimItem: %v", err)
	}
	if !claimed.IsClaimed || *claimed.Claimer != "Jane Doe" || !claimed.ClaimConsistent() {
		t.Errorf("unexpected claimed item: %+v", claimed)
	}
}

func TestAddItemSaveBlobFailure(t *testing.T) {
	st := newTestStore(t)
	ioErr := &store.IOError{Op: "save", Name: "x", Err: errors.New("disk full")}
	svc := New(&faultyStore{ItemStore: st, saveBlobErr: ioErr}, labelerFor("wallet", 0.9))

	before := countItems(t, st)
	_, err := svc.AddItem(context.Background(), Draft{}, testPhoto(t))

	var got *store.IOError
	if !errors.As(err, &got) {
		t.Fatalf("expected *store.IOError, got %v", err)
	}
	if after := countItems(t, st); after != before {
		t.Errorf("record count changed from %d to %d", before, after)
	}
}

func TestAddItemCreateRecordFailureRemovesBlob(t *testing.T) {
	st := newTestStore(t)
	svc := New(&faultyStore{ItemStore: st, createRecordErr: store.ErrDuplicateID}, labelerFor("wallet", 0.9))

	_, err := svc.AddItem(context.Background(), Draft{}, testPhoto(t))
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if n := blobCount(t, st); n != 0 {
		t.Errorf("expected photo to be removed, found %d blobs", n)
	}
}

func TestAddItemClassifyTimeout(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, stuckLabeler{}, WithClassifyTimeout(20*time.Millisecond))

	item, err := svc.AddItem(context.Background(), Draft{ItemName: "Thermos"}, testPhoto(t))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ItemName != "Thermos" {
		t.Errorf("expected draft name, got %q", item.ItemName)
	}
	if countItems(t, st) != 1 {
		t.Error("expected item to be stored after timeout")
	}
}

func TestAddItemAbandoned(t *testing.T) {
	st := newTestStore(t)
	svc := New(st, stuckLabeler{}, WithClassifyTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := svc.AddItem(ctx, Draft{}, testPhoto(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if countItems(t, st) != 0 || blobCount(t, st) != 0 {
		t.Error("abandoned AddItem must not store anything")
	}
}

func TestClaimItemTwice(t *testing.T) {
	svc := New(newTestStore(t), nil)
	ctx := context.Background()

	item, _ := svc.AddItem(ctx, Draft{ItemName: "Wallet"}, nil)

	if _, err := svc.ClaimItem(ctx, true, item, "Jane Doe"); err != nil {
		t.Fatalf("first ClaimItem: %v", err)
	}
	claimer, claimedAt := *item.Claimer, *item.DateClaimed

	_, err := svc.ClaimItem(ctx, true, item, "John Doe")
	if !errors.Is(err, ErrInvalidClaim) {
		t.Fatalf("expected ErrInvalidClaim, got %v", err)
	}
	if *item.Claimer != claimer || !item.DateClaimed.Equal(claimedAt) || !item.IsClaimed {
		t.Errorf("second claim changed the item: %+v", item)
	}

	stored, _ := svc.GetItem(ctx, item.ID)
	if *stored.Claimer != "Jane Doe" || !stored.ClaimConsistent() {
		t.Errorf("unexpected stored claim: %+v", stored)
	}
}

func TestClaimItemStaleCopy(t *testing.T) {
	svc := New(newTestStore(t), nil)
	ctx := context.Background()

	item, _ := svc.AddItem(ctx, Draft{ItemName: "Laptop"}, nil)
	stale := *item

	if _, err := svc.ClaimItem(ctx, true, item, "Jane Doe"); err != nil {
		t.Fatalf("ClaimItem: %v", err)
	}

	// A second screen still holds the unclaimed copy.
	_, err := svc.ClaimItem(ctx, true, &stale, "John Doe")
	if !errors.Is(err, ErrInvalidClaim) || !errors.Is(err, store.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrInvalidClaim wrapping ErrAlreadyClaimed, got %v", err)
	}
	if stale.IsClaimed || stale.Claimer != nil || stale.DateClaimed != nil {
		t.Errorf("stale copy should be rolled back, got %+v", stale)
	}
}

func TestClaimItemValidation(t *testing.T) {
	svc := New(newTestStore(t), nil)
	ctx := context.Background()
	item, _ := svc.AddItem(ctx, Draft{ItemName: "Keys"}, nil)

	if _, err := svc.ClaimItem(ctx, false, item, "Jane Doe"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.ClaimItem(ctx, true, item, "   "); !errors.Is(err, ErrInvalidClaim) {
		t.Errorf("expected ErrInvalidClaim for blank name, got %v", err)
	}
	if _, err := svc.ClaimItem(ctx, true, nil, "Jane Doe"); !errors.Is(err, ErrInvalidClaim) {
		t.Errorf("expected ErrInvalidClaim for nil item, got %v", err)
	}
	if item.IsClaimed || !item.ClaimConsistent() {
		t.Errorf("rejected claims must not mutate the item: %+v", item)
	}
}

func TestClaimItemRollsBackOnStoreFailure(t *testing.T) {
	st := newTestStore(t)
	faulty := &faultyStore{ItemStore: st}
	svc := New(faulty, nil)
	ctx := context.Background()

	item, _ := svc.AddItem(ctx, Draft{ItemName: "Watch"}, nil)
	faulty.updateRecordErr = errors.New("database is locked")

	_, err := svc.ClaimItem(ctx, true, item, "Jane Doe")
	if err == nil {
		t.Fatal("expected error")
	}
	if item.IsClaimed || item.Claimer != nil || item.DateClaimed != nil {
		t.Errorf("in-memory claim not rolled back: %+v", item)
	}

	stored, _ := svc.GetItem(ctx, item.ID)
	if stored.IsClaimed {
		t.Error("store should still hold the unclaimed item")
	}
}

func TestClaimItemByID(t *testing.T) {
	svc := New(newTestStore(t), nil)
	ctx := context.Background()
	item, _ := svc.AddItem(ctx, Draft{ItemName: "Glasses"}, nil)

	claimed, err := svc.ClaimItemByID(ctx, true, item.ID, "Jane Doe")
	if err != nil {
		t.Fatalf("ClaimItemByID: %v", err)
	}
	if !claimed.IsClaimed || *claimed.Claimer != "Jane Doe" {
		t.Errorf("unexpected claimed item: %+v", claimed)
	}

	if _, err := svc.ClaimItemByID(ctx, false, item.ID, "Jane Doe"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestWalletScenario(t *testing.T) {
	svc := New(newTestStore(t), labelerFor("Wallet", 0.85))
	ctx := context.Background()

	item, err := svc.AddItem(ctx, Draft{Category: "Electronics", LocationFound: "Library"}, testPhoto(t))
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.ItemName != "Wallet" || item.IsClaimed || item.Category != model.CategoryElectronics {
		t.Fatalf("unexpected new item: %+v", item)
	}

	before := time.Now()
	claimed, err := svc.ClaimItem(ctx, true, item, "Jane Doe")
	if err != nil {
		t.Fatalf("ClaimItem: %v", err)
	}
	if !claimed.IsClaimed || claimed.Claimer == nil || *claimed.Claimer != "Jane Doe" {
		t.Errorf("unexpected claim fields: %+v", claimed)
	}
	if claimed.DateClaimed == nil || claimed.DateClaimed.Before(before.Add(-time.Second)) || claimed.DateClaimed.After(time.Now().Add(time.Second)) {
		t.Errorf("DateClaimed %v not close to now", claimed.DateClaimed)
	}

	all, _ := svc.ListItems(ctx, store.ListFilter{})
	for _, it := range all {
		if !it.ClaimConsistent() {
			t.Errorf("inconsistent item in list: %+v", it)
		}
	}
}
