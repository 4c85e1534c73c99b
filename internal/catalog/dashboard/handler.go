package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/opendatath/catalog/internal/catalog/migrate"
	"github.com/opendatath/catalog/internal/catalog/sync"
)

// DatasetRefreshedData describes a remote refresh.
type DatasetRefreshedData struct {
	PackageID string `json:"package_id"`
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Resources int    `json:"resources"`
	Preserved int    `json:"preserved_rankings"`
}

// RankingUpdatedData describes a ranking write.
type RankingUpdatedData struct {
	PackageID string `json:"package_id"`
	Ranking   int    `json:"ranking"`
}

// ImportCompleteData describes a snapshot import.
type ImportCompleteData struct {
	OK        bool     `json:"ok"`
	Skipped   bool     `json:"skipped"`
	Message   string   `json:"message"`
	Datasets  int      `json:"datasets"`
	Resources int      `json:"resources"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Handler turns catalog write notifications into broadcast messages. It
// implements service.Listener.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a Handler broadcasting through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

func (h *Handler) OnDatasetRefreshed(status sync.Status) {
	h.send(MessageTypeDatasetRefreshed, DatasetRefreshedData{
		PackageID: status.PackageID,
		OK:        status.OK,
		Message:   status.Message,
		Resources: status.Resources,
		Preserved: status.Preserved,
	})
}

func (h *Handler) OnRankingUpdated(packageID string, ranking int) {
	h.send(MessageTypeRankingUpdated, RankingUpdatedData{PackageID: packageID, Ranking: ranking})
}

func (h *Handler) OnImportComplete(result migrate.Result) {
	h.send(MessageTypeImportComplete, ImportCompleteData{
		OK:        result.OK,
		Skipped:   result.Skipped,
		Message:   result.Message,
		Datasets:  result.Datasets,
		Resources: result.Resources,
		Warnings:  result.Warnings,
	})
}

func (h *Handler) OnStoreWiped() {
	h.send(MessageTypeStoreWiped, nil)
}

func (h *Handler) send(typ MessageType, data any) {
	msg := Message{Type: typ, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.logger.Printf("Failed to marshal %s data: %v", typ, err)
			return
		}
		msg.Data = raw
	}
	h.server.Broadcast(msg)
}
