// Command judged consumes judge requests from an SQS queue, evaluates
// them and streams results back to the requester's response queue.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/lmittmann/tint"

	"github.com/rsalesc/robox.io/api"
	"github.com/rsalesc/robox.io/internal/compile"
	"github.com/rsalesc/robox.io/internal/daemon"
	"github.com/rsalesc/robox.io/internal/environment"
	"github.com/rsalesc/robox.io/internal/filestore"
	"github.com/rsalesc/robox.io/internal/gath/natsgath"
	"github.com/rsalesc/robox.io/internal/gath/sqsgath"
	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/sandbox"
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	})))

	cfg, err := environment.Read()
	if err != nil {
		slog.Error("failed to read configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	download, err := filestore.S3DownloadFunc(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("failed to set up S3 downloads", "error", err)
		os.Exit(1)
	}
	store, err := filestore.New(
		filepath.Join(cfg.CacheDir, "files"),
		filepath.Join(cfg.CacheDir, "tmp"),
		download)
	if err != nil {
		slog.Error("failed to set up file store", "error", err)
		os.Exit(1)
	}
	store.Start()

	var runner sandbox.Runner
	switch cfg.SandboxBackend {
	case "isolate":
		runner = sandbox.NewIsolateRunner()
	case "proc":
		runner = sandbox.NewProcRunner()
	}

	compiles, err := compile.NewCache(filepath.Join(cfg.CacheDir, "compiled"), runner)
	if err != nil {
		slog.Error("failed to set up compile cache", "error", err)
		os.Exit(1)
	}

	d := daemon.New(runner, store, compiles)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		slog.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	slog.Info("judged started", "queue", cfg.SubmReqQueueURL,
		"backend", cfg.SandboxBackend, "parallelism", cfg.Parallelism)

	for {
		output, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(cfg.SubmReqQueueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     10,
		})
		if err != nil {
			slog.Error("failed to receive messages", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, message := range output.Messages {
			var req api.JudgeReq
			if err := json.Unmarshal([]byte(*message.Body), &req); err != nil {
				slog.Error("failed to unmarshal judge request", "error", err)
				deleteMessage(ctx, sqsClient, cfg.SubmReqQueueURL, message.ReceiptHandle)
				continue
			}
			if req.Parallelism == 0 {
				req.Parallelism = cfg.Parallelism
			}

			gath, cleanup, err := buildGatherer(ctx, cfg, req)
			if err != nil {
				slog.Error("failed to build result gatherer",
					"judge_uuid", req.JudgeUuid, "error", err)
				continue
			}

			slog.Info("judging request", "request", daemon.Describe(req))
			if err := d.Judge(ctx, req, gath); err != nil {
				slog.Error("judging failed", "judge_uuid", req.JudgeUuid, "error", err)
			}
			cleanup()

			deleteMessage(ctx, sqsClient, cfg.SubmReqQueueURL, message.ReceiptHandle)
		}
	}
}

func buildGatherer(ctx context.Context, cfg *environment.Config, req api.JudgeReq) (judge.Gatherer, func(), error) {
	var gatherers judge.MultiGatherer
	cleanup := func() {}

	if req.ResQueueUrl != "" {
		sg, err := sqsgath.New(ctx, cfg.AWSRegion, req.JudgeUuid, req.ResQueueUrl)
		if err != nil {
			return nil, nil, err
		}
		gatherers = append(gatherers, sg)
	}
	if cfg.NATSUrl != "" {
		ng, err := natsgath.New(cfg.NATSUrl, cfg.NATSSubject, req.JudgeUuid)
		if err != nil {
			return nil, nil, err
		}
		gatherers = append(gatherers, ng)
		cleanup = ng.Close
	}
	if len(gatherers) == 0 {
		return judge.NopGatherer{}, cleanup, nil
	}
	return gatherers, cleanup, nil
}

func deleteMessage(ctx context.Context, client *sqs.Client, queueUrl string, receiptHandle *string) {
	_, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueUrl),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		slog.Error("failed to delete message", "error", err)
	}
}
