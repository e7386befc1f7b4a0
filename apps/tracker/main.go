package main

import (
	"flag"
	"fmt"
	"log"
	"net/mail"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/notif"
	"github.com/trezcool/mahudhurio/core/realtime"
	"github.com/trezcool/mahudhurio/core/session"
	apisvc "github.com/trezcool/mahudhurio/services/api"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	logsvc "github.com/trezcool/mahudhurio/services/logger"
	realtimesvc "github.com/trezcool/mahudhurio/services/realtime"
	"github.com/trezcool/mahudhurio/storage/localstore"
)

// tracker follows one meeting end to end: it consumes participant events off
// the realtime channel, keeps the session ledger, surfaces notifications and
// pushes attendance upstream.
func main() {
	meetingID := flag.String("meeting", "", "meeting ID to track")
	flag.Parse()

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	std := log.New(os.Stdout, "TRACKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewStdLogger(std)
	} else {
		rollbarLogger := logsvc.NewRollbarLogger(std, conf)
		rollbarLogger.Enable(true)
		logger = rollbarLogger
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}

	snapshots := localstore.Open(conf.Snapshots.Path, conf.Snapshots.MaxRecords)
	apiClient := apisvc.NewClient(conf)

	sessionSvc := session.NewService(conf.Session, logger, snapshots, apiClient)
	queue := notif.NewQueue(conf.Notif, notif.NewFilter(conf.Notif))
	channel := realtime.NewChannel(conf.Realtime, logger, realtimesvc.NewNatsTransport(conf.Realtime))

	// =========================================================================
	// Wire events

	// realtime -> session ledger
	rtEvents := channel.Events()
	rtEvents.OnParticipantJoined(func(j session.Join) {
		if _, err := sessionSvc.AddOrUpdateParticipant(j); err != nil {
			logger.Warn(fmt.Sprintf("dropping join: %v", err), err)
		}
	})
	rtEvents.OnParticipantLeft(sessionSvc.RemoveParticipant)
	rtEvents.OnParticipantUpdated(sessionSvc.UpdateParticipant)
	rtEvents.OnBulkUpdate(sessionSvc.ApplyBulk)

	// realtime -> notifications
	rtEvents.OnStateChanged(func(state realtime.State) {
		switch state.Status {
		case realtime.StatusConnected:
			queue.PushConnection(notif.ConnEventConnected, state.ReconnectAttempts, "realtime connection established")
		case realtime.StatusDisconnected:
			queue.PushConnection(notif.ConnEventDisconnected, state.ReconnectAttempts, "realtime connection closed")
		case realtime.StatusError:
			queue.PushConnection(notif.ConnEventError, state.ReconnectAttempts, fmt.Sprintf("realtime connection failed: %s", state.Reason))

			// alert once retries are exhausted
			if state.ReconnectAttempts >= conf.Realtime.MaxReconnectAttempts && conf.AdminEmail != "" {
				mailSvc.SendMessages(&core.EmailMessage{
					To:      []mail.Address{{Address: conf.AdminEmail}},
					Subject: "Tracker offline",
					BodyStr: fmt.Sprintf("Realtime connection lost for meeting %q: %s", sessionSvc.MeetingID(), state.Reason),
				})
			}
		}
	})

	// session -> notifications & summary email
	sessEvents := sessionSvc.Events()
	sessEvents.OnParticipantJoined(func(rec session.Record) {
		queue.Push("participant", notif.SeverityInfo, fmt.Sprintf("%s joined", rec.Name))
	})
	sessEvents.OnSessionEnded(func(meetingID string, stats session.Stats) {
		queue.Push("session", notif.SeveritySuccess, fmt.Sprintf("session %s ended", meetingID))
		if conf.AdminEmail != "" {
			mailSvc.SendMessages(&core.EmailMessage{
				To:      []mail.Address{{Address: conf.AdminEmail}},
				Subject: fmt.Sprintf("Attendance summary for %s", meetingID),
				BodyStr: formatSummary(meetingID, stats),
			})
		}
	})

	queue.OnPushed(func(n notif.Notification) {
		logger.Info(n.String())
	})

	// =========================================================================
	// Start

	logger.Info(fmt.Sprintf("Tracker initializing : version %q", conf.Build))
	defer logger.Info("Tracker stopped")

	if *meetingID != "" {
		if err := sessionSvc.Start(*meetingID); err != nil {
			logger.Fatal(fmt.Sprintf("starting session: %v", err), err)
		}
	}
	sessionSvc.StartRefresh()
	channel.Connect()

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	channel.Disconnect()
	sessionSvc.EndSession()
	sessionSvc.Close()
	queue.Close()
	emailsvc.Wait() // summary/alert emails are sent asynchronously
}

func formatSummary(meetingID string, stats session.Stats) string {
	return fmt.Sprintf(
		"Meeting: %s\nParticipants: %d\nCompleted: %d\nLeft early: %d\nStill in progress: %d\nCompletion rate: %d%%\nAverage duration: %d min\n",
		meetingID, stats.Total, stats.Completed, stats.LeftEarly, stats.InProgress, stats.CompletionRate, stats.AverageDuration,
	)
}
