package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Routines
	r.HandleFunc("/api/routines", deps.RoutineHandler.List).Methods("GET")
	r.HandleFunc("/api/routines", deps.RoutineHandler.Create).Methods("POST")
	r.HandleFunc("/api/routines/parse", deps.RoutineHandler.Preview).Methods("POST")
	r.HandleFunc("/api/routines/{id}", deps.RoutineHandler.Get).Methods("GET")
	r.HandleFunc("/api/routines/{id}", deps.RoutineHandler.Update).Methods("PUT")
	r.HandleFunc("/api/routines/{id}", deps.RoutineHandler.Delete).Methods("DELETE")

	// Executions
	r.HandleFunc("/api/executions/{routineId}/{date}", deps.ExecutionHandler.Get).Methods("GET")
	r.HandleFunc("/api/executions/{routineId}/{date}/timer", deps.ExecutionHandler.StopTimer).Methods("DELETE")
	r.HandleFunc("/api/executions/{routineId}/{date}/items/{itemId}/toggle", deps.ExecutionHandler.Toggle).Methods("POST")
	r.HandleFunc("/api/executions/{routineId}/{date}/items/{itemId}/weight", deps.ExecutionHandler.SetWeight).Methods("PUT")
	r.HandleFunc("/api/executions/{routineId}/{date}/items/{itemId}/weight", deps.ExecutionHandler.ClearWeight).Methods("DELETE")
	r.HandleFunc("/api/executions/{routineId}/{date}/items/{itemId}/timer", deps.ExecutionHandler.StartTimer).Methods("POST")
	r.HandleFunc("/api/executions/{routineId}/{date}/items/{itemId}/mood", deps.ExecutionHandler.SetMood).Methods("PUT")
	r.HandleFunc("/api/executions/{routineId}/{date}/items/{itemId}/reflection", deps.ExecutionHandler.SetReflection).Methods("PUT")
	r.HandleFunc("/api/executions/{routineId}/{date}/items/{itemId}/declined", deps.ExecutionHandler.SetDeclined).Methods("PUT")
	r.HandleFunc("/api/executions/{routineId}/{date}/suggestions/{suggestionId}", deps.ExecutionHandler.DismissSuggestion).Methods("DELETE")

	// Daily actions; the timer route goes before {actionId} so it is not taken for an id.
	r.HandleFunc("/api/actions/{date}", deps.ActionHandler.Get).Methods("GET")
	r.HandleFunc("/api/actions/{date}", deps.ActionHandler.Add).Methods("POST")
	r.HandleFunc("/api/actions/{date}/timer", deps.ActionHandler.StopTimer).Methods("DELETE")
	r.HandleFunc("/api/actions/{date}/{actionId}", deps.ActionHandler.Update).Methods("PATCH")
	r.HandleFunc("/api/actions/{date}/{actionId}", deps.ActionHandler.Remove).Methods("DELETE")
	r.HandleFunc("/api/actions/{date}/{actionId}/toggle", deps.ActionHandler.Toggle).Methods("POST")
	r.HandleFunc("/api/actions/{date}/{actionId}/timer", deps.ActionHandler.StartTimer).Methods("POST")
	r.HandleFunc("/api/actions/{date}/{actionId}/mood", deps.ActionHandler.SetMood).Methods("PUT")

	// Day journal
	r.HandleFunc("/api/days/{date}", deps.DayHandler.Get).Methods("GET")
	r.HandleFunc("/api/days/{date}/vitals", deps.DayHandler.LogVital).Methods("POST")
	r.HandleFunc("/api/days/{date}/moods", deps.DayHandler.LogMood).Methods("POST")
	r.HandleFunc("/api/days/{date}/checkins", deps.DayHandler.CheckIn).Methods("POST")
	r.HandleFunc("/api/days/{date}/notes", deps.DayHandler.SetNotes).Methods("PUT")
	r.HandleFunc("/api/days/{date}/suggestions", deps.DayHandler.AddSuggestion).Methods("POST")
	r.HandleFunc("/api/days/{date}/suggestions/{suggestionId}", deps.DayHandler.RemoveSuggestion).Methods("DELETE")
	r.HandleFunc("/api/days/{date}/close", deps.DayHandler.CloseDay).Methods("POST")
	r.HandleFunc("/api/days/{date}/close", deps.DayHandler.Reopen).Methods("DELETE")
	r.HandleFunc("/api/days/{date}/note", deps.DayHandler.Note).Methods("GET")

	// Reminders
	r.HandleFunc("/api/reminders", deps.ReminderHandler.List).Methods("GET")
	r.HandleFunc("/api/reminders", deps.ReminderHandler.Create).Methods("POST")
	r.HandleFunc("/api/reminders/state/{date}", deps.ReminderHandler.Instances).Methods("GET")
	r.HandleFunc("/api/reminders/state/{date}/{reminderId}", deps.ReminderHandler.Dismiss).Methods("DELETE")
	r.HandleFunc("/api/reminders/{reminderId}", deps.ReminderHandler.Update).Methods("PUT")
	r.HandleFunc("/api/reminders/{reminderId}", deps.ReminderHandler.Delete).Methods("DELETE")

	// Settings
	r.HandleFunc("/api/settings", deps.SettingsHandler.Get).Methods("GET")
	r.HandleFunc("/api/settings", deps.SettingsHandler.Update).Methods("PATCH")

	// Backup
	r.HandleFunc("/api/backup", deps.BackupHandler.Export).Methods("GET")
	r.HandleFunc("/api/backup", deps.BackupHandler.Import).Methods("POST")

	// Cloud sync
	r.HandleFunc("/api/sync", deps.SyncHandler.Status).Methods("GET")
	r.HandleFunc("/api/sync/flush", deps.SyncHandler.Flush).Methods("POST")
}
