package integrationtest

import (
	"context"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/connectors/s3"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/processors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func TestS3SinkWritesOneObjectPerTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	endpoint := startMinio(t)

	b := kdag.NewBuilder()
	b.MustAddSource("gen", &processors.GeneratorSource{Total: 30, TxSize: 10})
	b.MustAddSink("archive", s3.NewSink(s3.SinkConfig{
		Endpoint:  endpoint,
		AccessKey: minioUser,
		SecretKey: minioPassword,
		Bucket:    "cdc",
		Prefix:    "events",
	}))
	b.MustConnect(kdag.Default("gen"), kdag.Default("archive"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	app := kflow.MustNew(b.MustBuild())
	defer app.Close()
	assert.NoError(t, app.Run(ctx))

	client, err := minio.New(endpoint, &minio.Options{Creds: credentials.NewStaticV4(minioUser, minioPassword, "")})
	assert.NoError(t, err)

	var names []string
	for obj := range client.ListObjects(ctx, "cdc", minio.ListObjectsOptions{Prefix: "events/", Recursive: true}) {
		assert.NoError(t, obj.Err)
		names = append(names, obj.Key)
	}
	assert.Equal(t, []string{
		s3.ObjectName("events", "gen", 9, 0),
		s3.ObjectName("events", "gen", 19, 1),
		s3.ObjectName("events", "gen", 29, 2),
	}, names)
}
