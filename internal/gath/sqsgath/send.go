package sqsgath

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func (s *Gatherer) send(msg any) {
	body, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal judging message", "error", err)
		return
	}
	_, err = s.sqsClient.SendMessage(context.Background(), &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueUrl),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		slog.Error("failed to send judging message",
			"queue_url", s.queueUrl, "error", err)
	}
}
