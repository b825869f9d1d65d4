package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"techtribe-client/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

type fakeEditor struct {
	updates []models.ProfileUpdate
}

func (f *fakeEditor) EditProfile(_ context.Context, upd models.ProfileUpdate) (*models.User, error) {
	f.updates = append(f.updates, upd)
	return &models.User{ID: "u1", ProfilePhotoURL: *upd.ProfilePhotoURL}, nil
}

func TestUploadSetsProfilePhoto(t *testing.T) {
	putter := &fakePutter{}
	editor := &fakeEditor{}
	u := &PhotoUploader{client: putter, bucket: "photos", publicURL: "https://cdn.example.test", profiles: editor}

	user, err := u.Upload(context.Background(), "u1", "me.PNG", strings.NewReader("png"), 3)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if len(putter.inputs) != 1 {
		t.Fatalf("PutObject called %d times", len(putter.inputs))
	}
	in := putter.inputs[0]
	key := aws.ToString(in.Key)
	if aws.ToString(in.Bucket) != "photos" || !strings.HasPrefix(key, "profiles/u1/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected object %s/%s", aws.ToString(in.Bucket), key)
	}
	if aws.ToString(in.ContentType) != "image/png" {
		t.Fatalf("content type = %s", aws.ToString(in.ContentType))
	}
	if user.ProfilePhotoURL != "https://cdn.example.test/"+key {
		t.Fatalf("profile photo = %s", user.ProfilePhotoURL)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	putter := &fakePutter{}
	u := &PhotoUploader{client: putter, bucket: "photos", profiles: &fakeEditor{}}

	if _, err := u.Upload(context.Background(), "u1", "notes.txt", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected error for text file")
	}
	if len(putter.inputs) != 0 {
		t.Fatal("nothing should be uploaded")
	}
}

func TestUploadStorageFailureSkipsProfileEdit(t *testing.T) {
	editor := &fakeEditor{}
	u := &PhotoUploader{client: &fakePutter{err: errors.New("denied")}, bucket: "photos", profiles: editor}

	if _, err := u.Upload(context.Background(), "u1", "me.jpg", strings.NewReader("j"), 1); err == nil {
		t.Fatal("expected upload error")
	}
	if len(editor.updates) != 0 {
		t.Fatal("profile must not be edited when the upload fails")
	}
}
