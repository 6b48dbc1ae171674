package review

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/catalog"
	"github.com/sells-group/plansync/internal/model"
	"github.com/sells-group/plansync/pkg/notion"
)

// StatusPendingReview is the Status given to queued plans.
const StatusPendingReview = "Pending Review"

// keyProperty holds the normalized identity used to skip plans already queued.
const keyProperty = "Key"

// NotionQueue files new plans as pages in a Notion review database.
type NotionQueue struct {
	client notion.Client
	dbID   string
}

// NewNotionQueue creates a queue writing to the database dbID.
func NewNotionQueue(client notion.Client, dbID string) *NotionQueue {
	return &NotionQueue{client: client, dbID: dbID}
}

// EnqueueResult counts what Enqueue did.
type EnqueueResult struct {
	Created int
	Skipped int
	Failed  int
}

// Enqueue creates one page per new plan in sess that has no page yet. A failed
// page does not stop the others; the returned error reports the failures.
func (q *NotionQueue) Enqueue(ctx context.Context, sess *model.Session) (EnqueueResult, error) {
	log := zap.L().With(zap.String("component", "review.notion"), zap.String("session_id", sess.ID))
	var res EnqueueResult
	if len(sess.NewPlans) == 0 {
		return res, nil
	}

	pages, err := notion.QueryAll(ctx, q.client, q.dbID, nil)
	if err != nil {
		return res, eris.Wrap(err, "review: list queued plans")
	}
	queued := make(map[string]bool, len(pages))
	for _, p := range pages {
		if k := notion.PlainText(p.Properties[keyProperty]); k != "" {
			queued[k] = true
		}
	}

	var lastErr error
	for _, c := range sess.NewPlans {
		key := planKey(c)
		if queued[key] {
			res.Skipped++
			continue
		}
		if _, err := q.client.CreatePage(ctx, q.pageRequest(sess, c, key)); err != nil {
			log.Warn("failed to queue plan for review",
				zap.String("provider", c.ProviderName),
				zap.String("plan", c.PlanName),
				zap.Error(err),
			)
			res.Failed++
			lastErr = err
			continue
		}
		queued[key] = true
		res.Created++
	}

	log.Info("review queue updated",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	if res.Failed > 0 {
		return res, eris.Wrapf(lastErr, "review: %d of %d plans not queued", res.Failed, len(sess.NewPlans))
	}
	return res, nil
}

func (q *NotionQueue) pageRequest(sess *model.Session, c model.ChangeRecord, key string) *notionapi.PageCreateRequest {
	props := notionapi.Properties{
		"Name":       notion.Title(fmt.Sprintf("%s / %s", c.ProviderName, c.PlanName)),
		"Provider":   notion.Text(c.ProviderName),
		"Plan":       notion.Text(c.PlanName),
		"Session":    notion.Text(sess.ID),
		"Status":     notion.Status(StatusPendingReview),
		keyProperty:  notion.Text(key),
		"Provenance": notion.Text(string(sess.Provenance)),
	}
	if c.NewRate != nil {
		props["Rate"] = notion.Number(*c.NewRate)
	}
	if s := c.Source; s != nil {
		props["Provenance"] = notion.Text(string(s.Provenance))
		props["Contract Months"] = notion.Number(float64(s.ContractMonths))
		props["Region"] = notion.Text(s.RegionID)
		if s.Documents.FactsLabel != "" {
			props["Facts Label"] = notion.URL(s.Documents.FactsLabel)
		}
	}
	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(q.dbID),
		},
		Properties: props,
	}
}

func planKey(c model.ChangeRecord) string {
	k := catalog.NewIdentityKey(c.ProviderName, c.PlanName)
	return k.Provider + "|" + k.Plan
}
