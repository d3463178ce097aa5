package repofake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/internal/ids"
	"github.com/adamcubel/Cubel-Cloud/internal/utils"
	"github.com/adamcubel/Cubel-Cloud/requests"
)

var _ requests.AccessRepo = (*FakeAccessRepo)(nil)

type FakeAccessRepo struct {
	lock sync.RWMutex
	rows map[string]*requests.AccessRequest
}

func NewFakeAccessRepo() *FakeAccessRepo {
	return &FakeAccessRepo{rows: make(map[string]*requests.AccessRequest)}
}

func (f *FakeAccessRepo) Create(_ context.Context, req *requests.AccessRequest) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, row := range f.rows {
		if row.UserID == req.UserID && row.ApplicationID == req.ApplicationID && row.Status == requests.StatusPending {
			return fmt.Errorf("access request for %s/%s: %w", req.UserID, req.ApplicationID, errors.ErrDuplicatePending)
		}
	}

	req.ID = ids.New()
	req.Status = requests.StatusPending
	req.RequestedAt = time.Now().UTC()
	stored := *req
	f.rows[req.ID] = &stored
	return nil
}

func (f *FakeAccessRepo) List(_ context.Context) ([]requests.AccessRequest, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	list := make([]requests.AccessRequest, 0, len(f.rows))
	for _, row := range f.rows {
		list = append(list, *row)
	}
	sort.Slice(list, func(i, j int) bool {
		if (list[i].Status == requests.StatusPending) != (list[j].Status == requests.StatusPending) {
			return list[i].Status == requests.StatusPending
		}
		return list[i].RequestedAt.After(list[j].RequestedAt)
	})
	return list, nil
}

func (f *FakeAccessRepo) Approve(_ context.Context, id, processedBy string) (*requests.AccessRequest, error) {
	return f.transition(id, requests.StatusApproved, processedBy, "")
}

func (f *FakeAccessRepo) Reject(_ context.Context, id, processedBy, notes string) (*requests.AccessRequest, error) {
	return f.transition(id, requests.StatusRejected, processedBy, notes)
}

func (f *FakeAccessRepo) transition(id string, status requests.Status, processedBy, notes string) (*requests.AccessRequest, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	row, ok := f.rows[id]
	if !ok || row.Status != requests.StatusPending {
		return nil, fmt.Errorf("access request %s: %w", id, errors.ErrNotFound)
	}

	row.Status = status
	row.ProcessedAt = utils.Ptr(time.Now().UTC())
	row.ProcessedBy = utils.Ptr(processedBy)
	if notes != "" {
		row.Notes = utils.Ptr(notes)
	}
	result := *row
	return &result, nil
}

var _ requests.RegistrationRepo = (*FakeRegistrationRepo)(nil)

type FakeRegistrationRepo struct {
	lock sync.RWMutex
	rows map[string]*requests.RegistrationRequest
}

func NewFakeRegistrationRepo() *FakeRegistrationRepo {
	return &FakeRegistrationRepo{rows: make(map[string]*requests.RegistrationRequest)}
}

func (f *FakeRegistrationRepo) Create(_ context.Context, req *requests.RegistrationRequest) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, row := range f.rows {
		if strings.EqualFold(row.Email, req.Email) && row.Status == requests.StatusPending {
			return fmt.Errorf("registration request for %s: %w", req.Email, errors.ErrDuplicatePending)
		}
	}

	req.ID = ids.New()
	req.Status = requests.StatusPending
	req.SubmittedAt = time.Now().UTC()
	stored := *req
	f.rows[req.ID] = &stored
	return nil
}

func (f *FakeRegistrationRepo) List(_ context.Context) ([]requests.RegistrationRequest, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	list := make([]requests.RegistrationRequest, 0, len(f.rows))
	for _, row := range f.rows {
		list = append(list, *row)
	}
	sort.Slice(list, func(i, j int) bool {
		if (list[i].Status == requests.StatusPending) != (list[j].Status == requests.StatusPending) {
			return list[i].Status == requests.StatusPending
		}
		return list[i].SubmittedAt.After(list[j].SubmittedAt)
	})
	return list, nil
}

func (f *FakeRegistrationRepo) Approve(_ context.Context, id, processedBy string) (*requests.RegistrationRequest, error) {
	return f.transition(id, requests.StatusApproved, processedBy, "")
}

func (f *FakeRegistrationRepo) Reject(_ context.Context, id, processedBy, notes string) (*requests.RegistrationRequest, error) {
	return f.transition(id, requests.StatusRejected, processedBy, notes)
}

func (f *FakeRegistrationRepo) transition(id string, status requests.Status, processedBy, notes string) (*requests.RegistrationRequest, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	row, ok := f.rows[id]
	if !ok || row.Status != requests.StatusPending {
		return nil, fmt.Errorf("registration request %s: %w", id, errors.ErrNotFound)
	}

	row.Status = status
	row.ProcessedAt = utils.Ptr(time.Now().UTC())
	row.ProcessedBy = utils.Ptr(processedBy)
	if notes != "" {
		row.Notes = utils.Ptr(notes)
	}
	result := *row
	return &result, nil
}
