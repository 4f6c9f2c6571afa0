package mirror

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"

	"cfgvault/internal/backup"
	"cfgvault/internal/config"
)

type fakeUploader struct {
	objects map[string]string
	failKey string
}

func (f *fakeUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failKey {
		return nil, errors.New("connection reset")
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("upload without deadline")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+key] = string(body)
	return &manager.UploadOutput{Key: in.Key}, nil
}

type fakeDeleter struct {
	deleted []string
	err     error
}

func (f *fakeDeleter) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func mirrorRecord() *backup.Record {
	return &backup.Record{
		ID:         "20240115_103000_abcd1234",
		Type:       backup.TypeManual,
		Status:     backup.StatusVerified,
		CreatedAt:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		SourcePath: "/home/user/.config/app/settings.json",
		BackupPath: "/home/user/.local/share/cfgvault/backups/settings/settings_20240115_103000_abcd1234.json",
		Version:    backup.FormatVersion,
	}
}

func TestKeys(t *testing.T) {
	rec := mirrorRecord()

	tests := []struct {
		prefix      string
		wantPayload string
		wantRecord  string
	}{
		{"", "settings/settings_20240115_103000_abcd1234.json", "metadata/20240115_103000_abcd1234.json"},
		{"laptop", "laptop/settings/settings_20240115_103000_abcd1234.json", "laptop/metadata/20240115_103000_abcd1234.json"},
		{"hosts/laptop/", "hosts/laptop/settings/settings_20240115_103000_abcd1234.json", "hosts/laptop/metadata/20240115_103000_abcd1234.json"},
	}

	for _, tt := range tests {
		if got := PayloadKey(tt.prefix, rec); got != tt.wantPayload {
			t.Errorf("PayloadKey(%q) = %q, want %q", tt.prefix, got, tt.wantPayload)
		}
		if got := RecordKey(tt.prefix, rec); got != tt.wantRecord {
			t.Errorf("RecordKey(%q) = %q, want %q", tt.prefix, got, tt.wantRecord)
		}
	}
}

func TestS3Mirror_Push(t *testing.T) {
	up := &fakeUploader{objects: map[string]string{}}
	m := newS3Mirror(up, &fakeDeleter{}, "configs", "laptop", time.Second)
	rec := mirrorRecord()

	if err := m.Push(rec, []byte(`{"theme":"dark"}`)); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	payload, ok := up.objects["configs/laptop/settings/settings_20240115_103000_abcd1234.json"]
	if !ok || payload != `{"theme":"dark"}` {
		t.Errorf("payload object = %q, %v", payload, ok)
	}

	meta, ok := up.objects["configs/laptop/metadata/20240115_103000_abcd1234.json"]
	if !ok {
		t.Fatal("record object not uploaded")
	}
	var got backup.Record
	if err := json.Unmarshal([]byte(meta), &got); err != nil {
		t.Fatalf("record object is not valid JSON: %v", err)
	}
	if got.ID != rec.ID || got.SourcePath != rec.SourcePath {
		t.Errorf("mirrored record = %+v", got)
	}
}

func TestS3Mirror_PushPayloadFailureSkipsRecord(t *testing.T) {
	up := &fakeUploader{
		objects: map[string]string{},
		failKey: "settings/settings_20240115_103000_abcd1234.json",
	}
	m := newS3Mirror(up, &fakeDeleter{}, "configs", "", time.Second)

	err := m.Push(mirrorRecord(), []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("Push() error = %v", err)
	}
	if len(up.objects) != 0 {
		t.Errorf("objects uploaded after payload failure: %v", up.objects)
	}
}

func TestS3Mirror_Remove(t *testing.T) {
	del := &fakeDeleter{}
	m := newS3Mirror(&fakeUploader{}, del, "configs", "laptop", time.Second)

	if err := m.Remove(mirrorRecord()); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	want := []string{
		"configs/laptop/metadata/20240115_103000_abcd1234.json",
		"configs/laptop/settings/settings_20240115_103000_abcd1234.json",
	}
	if len(del.deleted) != len(want) {
		t.Fatalf("deleted = %v, want %v", del.deleted, want)
	}
	for i := range want {
		if del.deleted[i] != want[i] {
			t.Errorf("deleted[%d] = %q, want %q", i, del.deleted[i], want[i])
		}
	}

	del.err = errors.New("access denied")
	if err := m.Remove(mirrorRecord()); err == nil {
		t.Error("Remove() expected error")
	}
}

func TestMemoryMirror(t *testing.T) {
	m := NewMemoryMirror("")
	rec := mirrorRecord()

	if err := m.Push(rec, []byte("payload")); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if len(m.Keys()) != 2 {
		t.Fatalf("Keys() = %v, want 2 keys", m.Keys())
	}
	data, ok := m.Get(PayloadKey("", rec))
	if !ok || string(data) != "payload" {
		t.Errorf("Get(payload) = %q, %v", data, ok)
	}

	if err := m.Remove(rec); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(m.Keys()) != 0 {
		t.Errorf("Keys() after Remove() = %v", m.Keys())
	}

	m.Err = errors.New("offline")
	if err := m.Push(rec, nil); err == nil {
		t.Error("Push() expected configured error")
	}
}

func TestNewMirrorFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MirrorConfig
		wantNil bool
		wantErr bool
	}{
		{name: "disabled", cfg: config.MirrorConfig{Type: "none"}, wantNil: true},
		{name: "empty type", cfg: config.MirrorConfig{}, wantNil: true},
		{name: "memory", cfg: config.MirrorConfig{Type: "memory"}},
		{name: "s3 with static credentials", cfg: config.MirrorConfig{
			Type: "s3", S3Bucket: "configs", S3Region: "us-east-1",
			S3Endpoint: "http://localhost:9000", S3AccessKeyID: "minio", S3SecretAccessKey: "minio123",
		}},
		{name: "bad timeout", cfg: config.MirrorConfig{Type: "s3", S3Bucket: "b", S3Region: "r", Timeout: "never"}, wantErr: true},
		{name: "unknown", cfg: config.MirrorConfig{Type: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMirrorFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMirrorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewMirrorFromConfig() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}
