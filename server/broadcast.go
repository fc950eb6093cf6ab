package server

import (
	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/pulse/async"
)

// broadcastMessage sends a message to all connected clients without blocking.
// Returns the number of clients that accepted the message (channel not full).
func (s *AutonomyServer) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := 0
	for client := range s.clients {
		select {
		case client.send <- msg:
			sent++
		default:
			s.broadcastDrops.Add(1)
		}
	}
	return sent
}

// broadcastJobUpdate sends a job update to all connected clients
func (s *AutonomyServer) broadcastJobUpdate(job *async.Job) {
	sent := s.broadcastMessage(JobUpdateMessage{
		Type: "job_update",
		Job:  async.FormatStatus(job),
	})
	s.logger.Debugw("Broadcast job update",
		logger.FieldJobID, shortID(job.ID),
		logger.FieldStatus, job.Status,
		"clients", sent)
}

// startJobUpdateBroadcaster subscribes to job updates and broadcasts them to WebSocket clients
func (s *AutonomyServer) startJobUpdateBroadcaster() {
	jobChan := s.jobs.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.jobs.Unsubscribe(jobChan)

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debugw("Job update broadcaster stopping due to context cancellation")
				return
			case job, ok := <-jobChan:
				if !ok {
					// Manager closed
					return
				}
				s.broadcastJobUpdate(job)
			}
		}
	}()

	s.logger.Infow("Job update broadcaster started")
}

// sendInitialJobsToClient queues the current non-terminal jobs for a new client
func (s *AutonomyServer) sendInitialJobsToClient(client *Client) {
	for _, status := range []async.JobStatus{async.JobStatusPending, async.JobStatusRunning} {
		st := status
		page, err := s.jobs.History(s.ctx, async.ListFilter{Status: &st, Limit: s.config().HistoryMaxLimit})
		if err != nil {
			s.logger.Warnw("Failed to load active jobs for client", "client_id", client.id, logger.FieldError, err)
			return
		}
		for _, job := range page.Jobs {
			s.sendToClient(client, JobUpdateMessage{Type: "job_update", Job: async.FormatStatus(job)})
		}
	}
}

// sendToClient queues one message for a registered client
func (s *AutonomyServer) sendToClient(client *Client, msg interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.clients[client] {
		return false
	}
	select {
	case client.send <- msg:
		return true
	default:
		s.broadcastDrops.Add(1)
		return false
	}
}
