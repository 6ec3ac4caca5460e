// Package querier discovers services and hosts on the local network via
// Multicast DNS (RFC 6762) and DNS-Based Service Discovery (RFC 6763).
//
// A Querier owns one multicast socket. Query sends a single question and
// collects matching answers until its context expires; Discover runs the
// RFC 6763 §9 service-type enumeration. The usual browse-then-resolve
// flow chains three queries:
//
//	q, err := querier.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Close()
//
//	// Which HTTP services exist?
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//	browse, _ := q.Query(ctx, "_http._tcp.local", querier.RecordTypePTR)
//
//	for _, record := range browse.Records {
//	    instance := record.AsPTR()
//
//	    // Where does this instance live?
//	    rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
//	    resolve, _ := q.Query(rctx, instance, querier.RecordTypeSRV)
//	    rcancel()
//
//	    for _, srv := range resolve.Records {
//	        if data := srv.AsSRV(); data != nil {
//	            fmt.Printf("%s → %s:%d\n", instance, data.Target, data.Port)
//	        }
//	    }
//	}
//
// Responses are aggregated for the full timeout window — mDNS answers
// trickle in from many responders — and deduplicated, and a window that
// closes empty returns an empty Response rather than an error. Interface
// selection defaults to every up, multicast-capable, non-VPN, non-Docker
// interface; override with WithInterfaces or WithInterfaceFilter.
package querier
