package sqlinline

// Queries against render_jobs. The per-owner cap lives in SQL so one fetch
// returns a fair batch no matter how many jobs a single owner has queued.

const QFetchEligiblePending = `--sql 18194c00-417d-4a0f-8c45-128e1b7d173f
with ranked as (
    select id,
           row_number() over (partition by owner_id order by created_at desc) as position
    from render_jobs
    where status = 'PENDING'
      and model = any($1)
)
select j.id, j.owner_id, j.model, j.prompt, j.width, j.height,
       j.strength, j.guidance, j.input_images, j.upload_remote,
       j.artifact_ref, j.status, j.error_message, j.created_at, j.updated_at
from render_jobs j
join ranked r on r.id = j.id
where r.position <= $2
order by j.owner_id, j.created_at desc;
`

const QClaimJob = `--sql a365f7a5-58e2-471e-8eb7-b8b627ce6e6c
update render_jobs
set status = $3, updated_at = now()
where id = $1 and status = $2;
`

const QMarkCompleted = `--sql 9dc3ac1d-03b2-4d9f-8461-50a6becc7e87
update render_jobs
set status = 'COMPLETED', artifact_ref = $2, error_message = '', updated_at = now()
where id = $1;
`

const QMarkFailed = `--sql 0bbe8d1a-fa9c-464a-8266-be0611f584fb
update render_jobs
set status = 'FAILED', error_message = $2, updated_at = now()
where id = $1;
`

const QFetchStuck = `--sql f0665bdc-2b2f-4525-af94-159e3ce9ba1a
select id, owner_id, model, prompt, width, height,
       strength, guidance, input_images, upload_remote,
       artifact_ref, status, error_message, created_at, updated_at
from render_jobs
where status = any($1)
  and updated_at < $2
order by updated_at asc;
`

const QReapStuck = `--sql 0376e880-ef2e-476c-9b55-8200d6904389
update render_jobs
set status = 'FAILED', error_message = $4, updated_at = now()
where id = $1 and status = any($2) and updated_at < $3;
`

const QCountByStatus = `--sql 12512f82-25f6-46f6-9ce6-c3beb4f11012
select status, count(*)
from render_jobs
group by status;
`
