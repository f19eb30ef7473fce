package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonflow/models"
	"salonflow/services/booking"
)

var weekdayNames = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// execute runs one command from the closed set and renders the client-facing
// reply. Unknown kinds never reach this point; the parser rejects them.
func (p *Processor) execute(ctx context.Context, conv *models.Conversation, cmd *models.Command) (string, error) {
	switch cmd.Kind {
	case models.CommandReply:
		return cmd.Text, nil
	case models.CommandListServices:
		return p.listServices(ctx)
	case models.CommandListProviders:
		return p.listProviders(ctx)
	case models.CommandProviderSchedule:
		return p.providerSchedule(ctx, cmd)
	case models.CommandCheckAvailability:
		return p.checkAvailability(ctx, cmd)
	case models.CommandCreateBooking:
		return p.createBooking(ctx, conv, cmd)
	case models.CommandUpdateBooking:
		return p.updateBooking(ctx, conv, cmd)
	case models.CommandCancelBooking:
		return p.cancelBooking(ctx, conv)
	case models.CommandGetAppointments:
		return p.getAppointments(ctx, conv)
	}
	return "", fmt.Errorf("unexecutable command %q", cmd.Kind)
}

func (p *Processor) listServices(ctx context.Context) (string, error) {
	services, err := p.catalog.ListServices(ctx)
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "Por el momento no tenemos servicios cargados.", nil
	}
	var sb strings.Builder
	sb.WriteString("Estos son nuestros servicios:\n")
	for _, svc := range services {
		fmt.Fprintf(&sb, "• %s - $%.0f (%d min)\n", svc.Name, svc.Price, svc.DurationMinutes)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (p *Processor) listProviders(ctx context.Context) (string, error) {
	providers, err := p.catalog.ListProviders(ctx)
	if err != nil {
		return "", err
	}
	if len(providers) == 0 {
		return "Por el momento no tenemos estilistas registradas.", nil
	}
	var sb strings.Builder
	sb.WriteString("Nuestro equipo:\n")
	for _, prov := range providers {
		if len(prov.Specialties) > 0 {
			fmt.Fprintf(&sb, "• %s (%s)\n", prov.Name, strings.Join(prov.Specialties, ", "))
		} else {
			fmt.Fprintf(&sb, "• %s\n", prov.Name)
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (p *Processor) providerSchedule(ctx context.Context, cmd *models.Command) (string, error) {
	provider, err := p.resolveProvider(ctx, cmd.ProviderName, nil)
	if err != nil {
		return "", err
	}
	if provider == nil {
		return fmt.Sprintf("No encontré a %q en el equipo.", cmd.ProviderName), nil
	}
	if len(provider.Weekly) == 0 {
		return fmt.Sprintf("%s no tiene horario registrado.", provider.Name), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Horario de %s:\n", provider.Name)
	for _, block := range provider.Weekly {
		if block.Weekday >= 0 && block.Weekday < len(weekdayNames) {
			fmt.Fprintf(&sb, "• %s de %s a %s\n", weekdayNames[block.Weekday], block.StartTime, block.EndTime)
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (p *Processor) checkAvailability(ctx context.Context, cmd *models.Command) (string, error) {
	provider, err := p.resolveProvider(ctx, cmd.ProviderName, cmd.Services)
	if err != nil {
		return "", err
	}
	if provider == nil {
		return "¿Con quién te gustaría agendar? Puedo revisar la agenda de cualquiera del equipo.", nil
	}

	day := time.Now().In(p.loc)
	if cmd.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", cmd.Date, p.loc)
		if err != nil {
			return "¿Para qué fecha te gustaría? Dímela como día y mes, por favor.", nil
		}
		day = parsed
	}

	duration, err := p.servicesDuration(ctx, cmd.Services)
	if err != nil {
		return "", err
	}

	slots, err := p.slots.AvailableSlots(ctx, provider, day, duration, 5)
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return fmt.Sprintf("%s no tiene espacios el %s. ¿Te busco otro día?",
			provider.Name, formatDay(day)), nil
	}
	times := make([]string, len(slots))
	for i, slot := range slots {
		times[i] = slot.Format("15:04")
	}
	return fmt.Sprintf("%s tiene estos espacios el %s: %s. ¿Cuál te acomoda?",
		provider.Name, formatDay(day), strings.Join(times, ", ")), nil
}

func (p *Processor) createBooking(ctx context.Context, conv *models.Conversation, cmd *models.Command) (string, error) {
	provider, err := p.resolveProvider(ctx, cmd.ProviderName, cmd.Services)
	if err != nil {
		return "", err
	}
	if provider == nil {
		return "¿Con quién del equipo te gustaría tu cita?", nil
	}
	start, ok := p.parseWhen(cmd.Date, cmd.Time)
	if !ok {
		return "¿Qué día y a qué hora te gustaría tu cita?", nil
	}

	clientName := cmd.ClientName
	if clientName == "" {
		clientName = conv.ClientName
	}

	created, err := p.bookings.Create(ctx, models.BookingInput{
		SenderPhone: conv.SenderPhone,
		ClientName:  clientName,
		ProviderID:  provider.ID,
		Services:    cmd.Services,
		Start:       start,
		Notes:       cmd.Notes,
	})
	if err != nil {
		return p.bookingFailureReply(ctx, provider, start, err)
	}
	p.count(ctx, models.StatsDelta{BookingsCreated: 1})
	greeting := "Listo"
	if n := firstName(clientName); n != "" {
		greeting = "Listo, " + n
	}
	return fmt.Sprintf("%s. Tu cita quedó el %s a las %s con %s: %s. Total: $%.0f.",
		greeting, formatDay(created.Start), created.Start.Format("15:04"),
		provider.Name, strings.Join(created.Services, ", "), created.TotalPrice), nil
}

func (p *Processor) updateBooking(ctx context.Context, conv *models.Conversation, cmd *models.Command) (string, error) {
	current, err := p.bookings.NextUpcoming(ctx, conv.SenderPhone)
	if err != nil {
		return "", err
	}
	if current == nil {
		return "No encontré ninguna cita próxima a tu nombre. ¿Quieres agendar una?", nil
	}

	changes := models.BookingChanges{Services: cmd.Services}
	if start, ok := p.parseWhen(cmd.Date, cmd.Time); ok {
		changes.Start = &start
	}
	if cmd.Notes != "" {
		notes := cmd.Notes
		changes.Notes = &notes
	}
	if changes.Start == nil && len(changes.Services) == 0 && changes.Notes == nil {
		return "¿Qué te gustaría cambiar de tu cita, la fecha o los servicios?", nil
	}

	updated, err := p.bookings.Update(ctx, current.ID, changes)
	if err != nil {
		return p.bookingFailureReply(ctx, nil, current.Start, err)
	}
	p.count(ctx, models.StatsDelta{BookingsUpdated: 1})
	return fmt.Sprintf("Hecho. Tu cita quedó el %s a las %s: %s. Total: $%.0f.",
		formatDay(updated.Start), updated.Start.Format("15:04"),
		strings.Join(updated.Services, ", "), updated.TotalPrice), nil
}

func (p *Processor) cancelBooking(ctx context.Context, conv *models.Conversation) (string, error) {
	current, err := p.bookings.NextUpcoming(ctx, conv.SenderPhone)
	if err != nil {
		return "", err
	}
	if current == nil {
		return "No encontré ninguna cita próxima a tu nombre.", nil
	}
	if err := p.bookings.Cancel(ctx, current.ID); err != nil {
		return "", err
	}
	p.count(ctx, models.StatsDelta{BookingsCancelled: 1})
	return fmt.Sprintf("Tu cita del %s a las %s quedó cancelada. Aquí estamos cuando quieras reagendar.",
		formatDay(current.Start), current.Start.Format("15:04")), nil
}

func (p *Processor) getAppointments(ctx context.Context, conv *models.Conversation) (string, error) {
	upcoming, past, err := p.bookings.Appointments(ctx, conv.SenderPhone)
	if err != nil {
		return "", err
	}
	if len(upcoming) == 0 && len(past) == 0 {
		return "No tienes citas registradas todavía. ¿Te agendo una?", nil
	}
	var sb strings.Builder
	if len(upcoming) > 0 {
		sb.WriteString("Tus próximas citas:\n")
		for _, b := range upcoming {
			fmt.Fprintf(&sb, "• %s %s - %s\n", formatDay(b.Start), b.Start.Format("15:04"), strings.Join(b.Services, ", "))
		}
	} else {
		sb.WriteString("No tienes citas próximas.\n")
	}
	if len(past) > 0 {
		sb.WriteString("Tus últimas visitas:\n")
		for _, b := range past {
			fmt.Fprintf(&sb, "• %s - %s\n", formatDay(b.Start), strings.Join(b.Services, ", "))
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// bookingFailureReply translates engine errors into client-facing text,
// proposing alternative slots on a conflict.
func (p *Processor) bookingFailureReply(ctx context.Context, provider *models.Provider, start time.Time, err error) (string, error) {
	switch {
	case errors.Is(err, booking.ErrConflict):
		if provider != nil {
			slots, slotErr := p.slots.AvailableSlots(ctx, provider, start, time.Hour, 4)
			if slotErr == nil && len(slots) > 0 {
				times := make([]string, len(slots))
				for i, slot := range slots {
					times[i] = slot.Format("15:04")
				}
				return fmt.Sprintf("Ese horario ya está ocupado. %s tiene libre: %s. ¿Alguno te funciona?",
					provider.Name, strings.Join(times, ", ")), nil
			}
		}
		return "Ese horario ya está ocupado. ¿Te busco otra hora?", nil
	case errors.Is(err, booking.ErrProviderBusy):
		return "Estoy confirmando otra cita en ese horario, dame un momento e inténtalo de nuevo.", nil
	}
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		switch verr.Field {
		case "start":
			return "Esa hora no está dentro de nuestro horario de atención. ¿Te busco otra?", nil
		case "services":
			return "No reconocí alguno de los servicios. ¿Me dices cuáles te interesan?", nil
		case "provider":
			return "No encontré a esa persona en el equipo. ¿Con quién te gustaría?", nil
		}
		return "Me faltan algunos datos para agendar. " + verr.Msg, nil
	}
	return "", err
}

// resolveProvider finds a provider by name, or picks the first active one
// eligible for every requested service when no name was given.
func (p *Processor) resolveProvider(ctx context.Context, name string, serviceNames []string) (*models.Provider, error) {
	if name != "" {
		return p.catalog.FindProviderByName(ctx, name)
	}
	providers, err := p.catalog.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	if len(serviceNames) == 0 {
		if len(providers) > 0 {
			return &providers[0], nil
		}
		return nil, nil
	}
	for i := range providers {
		eligible := true
		for _, svcName := range serviceNames {
			svc, err := p.catalog.FindServiceByName(ctx, svcName)
			if err != nil || svc == nil || !svc.EligibleProvider(providers[i].ID) {
				eligible = false
				break
			}
		}
		if eligible {
			return &providers[i], nil
		}
	}
	return nil, nil
}

// servicesDuration sums the requested service durations, defaulting to the
// slot step when none resolve.
func (p *Processor) servicesDuration(ctx context.Context, serviceNames []string) (time.Duration, error) {
	var minutes int
	for _, name := range serviceNames {
		svc, err := p.catalog.FindServiceByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if svc != nil {
			minutes += svc.DurationMinutes
		}
	}
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (p *Processor) parseWhen(date, clock string) (time.Time, bool) {
	if date == "" || clock == "" {
		return time.Time{}, false
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, p.loc)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func formatDay(t time.Time) string {
	return fmt.Sprintf("%s %d/%d", weekdayNames[int(t.Weekday())], t.Day(), int(t.Month()))
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if idx := strings.IndexByte(full, ' '); idx > 0 {
		return full[:idx]
	}
	return full
}
