package mcptools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

type fakeBitableClient struct {
	getRecord  models.Record
	createdID  string
	searchRecs []models.Record
	searchTot  int
	tables     []bitable.TableInfo
}

func (f *fakeBitableClient) GetRecord(ctx context.Context, loc models.Locator) (models.Record, error) {
	return f.getRecord, nil
}
func (f *fakeBitableClient) UpdateFields(ctx context.Context, loc models.Locator, fields models.Fields) error {
	return nil
}
func (f *fakeBitableClient) CreateRecord(ctx context.Context, target models.TableRef, fields models.Fields) (string, error) {
	return f.createdID, nil
}
func (f *fakeBitableClient) DeleteRecord(ctx context.Context, loc models.Locator) error { return nil }
func (f *fakeBitableClient) Search(ctx context.Context, mode bitable.SearchMode, params bitable.SearchParams) ([]models.Record, int, error) {
	return f.searchRecs, f.searchTot, nil
}
func (f *fakeBitableClient) ListTables(ctx context.Context, appToken string) ([]bitable.TableInfo, error) {
	return f.tables, nil
}

func TestRegisterBitableToolsDispatchesRecordGet(t *testing.T) {
	client := &fakeBitableClient{getRecord: models.Record{
		Locator: models.Locator{AppToken: "app1", TableID: "tbl1", RecordID: "rec1"},
	}}
	reg := New()
	RegisterBitableTools(reg, client)

	result, err := reg.Dispatch(context.Background(), "feishu.v1.bitable.record.get",
		json.RawMessage(`{"app_token":"app1","table_id":"tbl1","record_id":"rec1"}`))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	rec, ok := result.(models.Record)
	if !ok || rec.RecordID != "rec1" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRegisterBitableToolsRejectsMissingRequiredParam(t *testing.T) {
	reg := New()
	RegisterBitableTools(reg, &fakeBitableClient{})

	if _, err := reg.Dispatch(context.Background(), "feishu.v1.bitable.record.create",
		json.RawMessage(`{"app_token":"app1","table_id":"tbl1"}`)); err == nil {
		t.Fatal("expected validation error for missing fields")
	}
}

func TestRegisterBitableToolsRegistersAllSearchModes(t *testing.T) {
	reg := New()
	RegisterBitableTools(reg, &fakeBitableClient{})

	for _, name := range []string{
		"feishu.v1.bitable.search", "feishu.v1.bitable.search_exact",
		"feishu.v1.bitable.search_keyword", "feishu.v1.bitable.search_person",
		"feishu.v1.bitable.search_date_range",
	} {
		if _, ok := reg.Get(name); !ok {
			t.Fatalf("expected tool %s to be registered", name)
		}
	}
}
